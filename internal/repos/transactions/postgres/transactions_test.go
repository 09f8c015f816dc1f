package transactions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/walletpay/internal/infra/pgtestutil"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func seedWallet(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()

	id := uuid.New()

	_, err := db.Exec(`INSERT INTO wallets (id, user_id, balance) VALUES ($1, $2, 1000)`, id, uuid.New())
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	return id
}

func newTxn(walletID uuid.UUID, typ models.TransactionType, status models.TransactionStatus, amount string) models.Transaction {
	return models.Transaction{
		ID:       uuid.New(),
		WalletID: walletID,
		Type:     typ,
		Amount:   decimal.RequireFromString(amount),
		Status:   status,
		Metadata: models.Metadata{Description: "test"},
	}
}

func insert(t *testing.T, db *sql.DB, repo *transactionsRepo, txn models.Transaction) (models.Transaction, error) {
	t.Helper()

	tx, err := db.BeginTx(t.Context(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	got, err := repo.Insert(t.Context(), tx, txn)
	if err != nil {
		return got, err
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	return got, nil
}

func TestTransactions_Insert(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	walletID := seedWallet(t, db)

	original := newTxn(walletID, models.TransactionBillPayment, models.TransactionPending, "300.00")

	tests := []struct {
		name    string
		txn     func() models.Transaction
		wantErr error
	}{
		{
			name: "ok_insert",
			txn:  func() models.Transaction { return original },
		},
		{
			name:    "duplicate_id",
			txn:     func() models.Transaction { return original },
			wantErr: transactions.ErrDuplicateTransaction,
		},
		{
			name: "unknown_wallet",
			txn: func() models.Transaction {
				return newTxn(uuid.New(), models.TransactionWalletFunding, models.TransactionCompleted, "1")
			},
			wantErr: transactions.ErrUnknownWallet,
		},
		{
			name: "first_refund",
			txn: func() models.Transaction {
				r := newTxn(walletID, models.TransactionRefund, models.TransactionCompleted, "300.00")
				r.ReferenceTransactionID = &original.ID
				return r
			},
		},
		{
			name: "second_refund_rejected",
			txn: func() models.Transaction {
				r := newTxn(walletID, models.TransactionRefund, models.TransactionCompleted, "300.00")
				r.ReferenceTransactionID = &original.ID
				return r
			},
			wantErr: transactions.ErrAlreadyRefunded,
		},
		{
			name: "zero_amount_rejected_by_schema",
			txn: func() models.Transaction {
				return newTxn(walletID, models.TransactionWalletFunding, models.TransactionCompleted, "0")
			},
			wantErr: models.ErrInvalidArgument,
		},
	}

	// subtests share one database and build on each other, so they run in order
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.txn()

			got, err := insert(t, db, repo, in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("unexpected error: got %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got.ID != in.ID || !got.Amount.Equal(in.Amount) || got.Metadata.Description != "test" {
				t.Fatalf("unexpected inserted row: %+v", got)
			}
		})
	}

	refund, err := repo.GetRefundFor(t.Context(), original.ID)
	if err != nil {
		t.Fatalf("get refund: %v", err)
	}

	if refund.ReferenceTransactionID == nil || *refund.ReferenceTransactionID != original.ID {
		t.Fatalf("refund does not reference original: %+v", refund)
	}
}

func TestTransactions_UpdateStatus(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	walletID := seedWallet(t, db)

	txn, err := insert(t, db, repo, newTxn(walletID, models.TransactionBillPayment, models.TransactionPending, "10"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ctx := t.Context()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	locked, err := repo.LockByID(ctx, tx, txn.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	if locked.Status != models.TransactionPending {
		t.Fatalf("expected PENDING, got %s", locked.Status)
	}

	failed, err := repo.UpdateStatus(ctx, tx, txn.ID, models.TransactionFailed, "provider down")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if failed.Status != models.TransactionFailed || failed.FailureReason != "provider down" {
		t.Fatalf("unexpected row after failure: %+v", failed)
	}

	reversed, err := repo.UpdateStatus(ctx, tx, txn.ID, models.TransactionReversed, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if reversed.FailureReason != "provider down" {
		t.Fatalf("empty reason must keep stored reason, got %q", reversed.FailureReason)
	}

	_, err = repo.UpdateStatus(ctx, tx, uuid.New(), models.TransactionFailed, "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactions_ListByWallet(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	walletID := seedWallet(t, db)
	other := seedWallet(t, db)

	var ids []uuid.UUID

	for i := 0; i < 5; i++ {
		txn, err := insert(t, db, repo, newTxn(walletID, models.TransactionWalletFunding, models.TransactionCompleted, "1"))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		ids = append(ids, txn.ID)
	}

	_, err := insert(t, db, repo, newTxn(other, models.TransactionWalletFunding, models.TransactionCompleted, "1"))
	if err != nil {
		t.Fatalf("insert other: %v", err)
	}

	tests := []struct {
		name      string
		page      models.PageRequest
		wantCount int
		wantFirst uuid.UUID
	}{
		{name: "first_page", page: models.PageRequest{Page: 1, Limit: 2}, wantCount: 2, wantFirst: ids[4]},
		{name: "last_page", page: models.PageRequest{Page: 3, Limit: 2}, wantCount: 1, wantFirst: ids[0]},
		{name: "past_end", page: models.PageRequest{Page: 4, Limit: 2}, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := repo.ListByWallet(t.Context(), walletID, tt.page)
			if err != nil {
				t.Fatalf("list: %v", err)
			}

			if total != 5 {
				t.Fatalf("total: want 5, got %d", total)
			}

			if len(items) != tt.wantCount {
				t.Fatalf("count: want %d, got %d", tt.wantCount, len(items))
			}

			if tt.wantCount > 0 && items[0].ID != tt.wantFirst {
				t.Fatalf("ordering: want first %s, got %s", tt.wantFirst, items[0].ID)
			}
		})
	}
}

func TestTransactions_ListStale(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	walletID := seedWallet(t, db)

	stale, err := insert(t, db, repo, newTxn(walletID, models.TransactionBillPayment, models.TransactionFailed, "5"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = db.Exec(`UPDATE transactions SET updated_at = now() - interval '1 hour' WHERE id = $1`, stale.ID)
	if err != nil {
		t.Fatalf("age row: %v", err)
	}

	_, err = insert(t, db, repo, newTxn(walletID, models.TransactionBillPayment, models.TransactionFailed, "5"))
	if err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	got, err := repo.ListStale(ctx, models.TransactionBillPayment, models.TransactionFailed, time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}

	if len(got) != 1 || got[0].ID != stale.ID {
		t.Fatalf("expected only the aged row, got %+v", got)
	}
}
