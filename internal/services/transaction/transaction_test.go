package transaction

import (
	"errors"
	"testing"

	"github.com/fastprodman/walletpay/internal/infra/pgtestutil"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/fastprodman/walletpay/internal/queue/memqueue"
	"github.com/fastprodman/walletpay/internal/services/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fixture struct {
	svc     *TransactionService
	wallets *wallet.WalletService
	queue   *memqueue.Queue
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	q := memqueue.New()

	return fixture{
		svc:     New(db, q, nil),
		wallets: wallet.New(db, nil),
		queue:   q,
	}
}

func (f fixture) userWithDebit(t *testing.T, fund, debit string) (uuid.UUID, models.Transaction) {
	t.Helper()

	userID := uuid.New()

	_, err := f.wallets.Create(t.Context(), userID)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	_, err = f.wallets.Fund(t.Context(), userID, decimal.RequireFromString(fund))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}

	txn, err := f.wallets.Deduct(t.Context(), userID, decimal.RequireFromString(debit), models.TransactionBillPayment, models.Metadata{})
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}

	return userID, txn
}

func TestTransactionService_FindOneForUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner, txn := f.userWithDebit(t, "100", "10")
	other, _ := f.userWithDebit(t, "100", "10")

	tests := []struct {
		name    string
		id      uuid.UUID
		userID  uuid.UUID
		wantErr error
	}{
		{name: "owner", id: txn.ID, userID: owner},
		{name: "other_user_forbidden", id: txn.ID, userID: other, wantErr: models.ErrForbidden},
		{name: "user_without_wallet_forbidden", id: txn.ID, userID: uuid.New(), wantErr: models.ErrForbidden},
		{name: "missing_not_found", id: uuid.New(), userID: owner, wantErr: models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.FindOneForUser(t.Context(), tt.id, tt.userID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil || got.ID != txn.ID {
				t.Fatalf("unexpected result: %+v, %v", got, err)
			}
		})
	}
}

func TestTransactionService_UpdateStatus_Transitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, txn := f.userWithDebit(t, "100", "10")
	ctx := t.Context()

	steps := []struct {
		status  models.TransactionStatus
		reason  string
		wantErr error
	}{
		{status: models.TransactionProcessing},
		{status: models.TransactionProcessing},
		{status: models.TransactionPending, wantErr: models.ErrConflict},
		{status: models.TransactionFailed, reason: "Invalid bill reference"},
		{status: models.TransactionCompleted, wantErr: models.ErrConflict},
		{status: "SETTLED", wantErr: models.ErrInvalidArgument},
	}

	for i, st := range steps {
		got, err := f.svc.UpdateStatus(ctx, txn.ID, st.status, st.reason)
		if st.wantErr != nil {
			if !errors.Is(err, st.wantErr) {
				t.Fatalf("step %d (%s): want %v, got %v", i, st.status, st.wantErr, err)
			}
			continue
		}

		if err != nil {
			t.Fatalf("step %d (%s): %v", i, st.status, err)
		}

		if got.Status != st.status {
			t.Fatalf("step %d: want %s, got %s", i, st.status, got.Status)
		}
	}

	final, err := f.svc.FindByID(ctx, txn.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	if final.Status != models.TransactionFailed || final.FailureReason != "Invalid bill reference" {
		t.Fatalf("unexpected final row: %+v", final)
	}
}

func TestTransactionService_CreateReversalTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID, txn := f.userWithDebit(t, "100", "40")
	ctx := t.Context()

	_, err := f.svc.CreateReversalTransaction(ctx, userID, decimal.NewFromInt(39), txn.ID, "mismatch")
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for wrong amount, got %v", err)
	}

	rev, err := f.svc.CreateReversalTransaction(ctx, userID, decimal.NewFromInt(40), txn.ID, "manual")
	if err != nil {
		t.Fatalf("create reversal: %v", err)
	}

	if rev.Type != models.TransactionRefund || rev.Status != models.TransactionPending ||
		rev.ReferenceTransactionID == nil || *rev.ReferenceTransactionID != txn.ID {
		t.Fatalf("unexpected reversal: %+v", rev)
	}

	_, err = f.svc.CreateReversalTransaction(ctx, userID, decimal.NewFromInt(40), txn.ID, "again")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict for second reversal, got %v", err)
	}

	bal, err := f.wallets.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	if !bal.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("recording a reversal must not move funds, balance %s", bal)
	}
}

func TestTransactionService_TriggerRollback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID, txn := f.userWithDebit(t, "100", "25")
	ctx := t.Context()

	err := f.svc.TriggerRollback(ctx, txn.ID, userID, txn.Amount, "Payment rejected by service provider")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	job, ok, err := f.queue.Claim(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("expected enqueued job: ok=%v err=%v", ok, err)
	}

	if job.Kind != queue.KindRollbackTransaction || job.Priority != queue.PriorityHigh {
		t.Fatalf("unexpected job: %+v", job)
	}

	var payload queue.RollbackTransaction
	if err := job.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if payload.TransactionID != txn.ID || payload.UserID != userID || payload.Reason != "Payment rejected by service provider" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestTransactionService_CreateTransaction_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.CreateTransaction(t.Context(), models.Transaction{
		WalletID: uuid.New(),
		Type:     "TRANSFER",
		Status:   models.TransactionPending,
		Amount:   decimal.NewFromInt(1),
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = f.svc.CreateTransaction(t.Context(), models.Transaction{
		WalletID: uuid.New(),
		Type:     models.TransactionWalletFunding,
		Status:   models.TransactionCompleted,
		Amount:   decimal.NewFromInt(1),
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown wallet, got %v", err)
	}
}

func TestTransactionService_FindRefund(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, txn := f.userWithDebit(t, "100", "30")
	ctx := t.Context()

	_, err := f.svc.FindRefund(ctx, txn.ID)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before the refund, got %v", err)
	}

	refund, err := f.wallets.Refund(ctx, txn.ID, "Invalid bill reference")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	got, err := f.svc.FindRefund(ctx, txn.ID)
	if err != nil {
		t.Fatalf("find refund: %v", err)
	}

	if got.ID != refund.ID || !got.Amount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected refund: %+v", got)
	}
}
