package wallets

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/walletpay/internal/infra/pgtestutil"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func seedWallet(t *testing.T, db *sql.DB, balance string) models.Wallet {
	t.Helper()

	w := models.Wallet{ID: uuid.New(), UserID: uuid.New(), Balance: decimal.RequireFromString(balance)}

	_, err := db.Exec(`INSERT INTO wallets (id, user_id, balance) VALUES ($1, $2, $3)`, w.ID, w.UserID, w.Balance)
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	return w
}

func TestWallets_Create(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()

	userID := uuid.New()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	created, err := repo.Create(ctx, tx, models.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.Zero})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if created.Version != 1 || !created.Balance.IsZero() {
		t.Fatalf("unexpected new wallet: %+v", created)
	}

	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	_, err = repo.Create(ctx, tx, models.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.Zero})
	if !errors.Is(err, wallets.ErrWalletExists) || !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
}

func TestWallets_GetByUserID(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	seeded := seedWallet(t, db, "125.50")

	got, err := repo.GetByUserID(t.Context(), seeded.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.ID != seeded.ID || !got.Balance.Equal(seeded.Balance) {
		t.Fatalf("unexpected wallet: %+v", got)
	}

	_, err = repo.GetByUserID(t.Context(), uuid.New())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	byID, err := repo.GetByID(t.Context(), seeded.ID)
	if err != nil || byID.UserID != seeded.UserID {
		t.Fatalf("get by id: %+v, %v", byID, err)
	}

	_, err = repo.GetByID(t.Context(), uuid.New())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by id, got %v", err)
	}
}

func TestWallets_DecreaseBalance_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		balance     string
		amount      string
		wantBalance string
		wantErr     bool
	}{
		{name: "sufficient_funds", balance: "1000.00", amount: "250.25", wantBalance: "749.75"},
		{name: "exact_to_zero", balance: "300", amount: "300", wantBalance: "0"},
		{name: "insufficient_balance_unchanged", balance: "200", amount: "300", wantBalance: "200", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			w := seedWallet(t, db, tt.balance)

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			updated, err := repo.DecreaseBalance(ctx, tx, w.ID, decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				if !errors.Is(err, models.ErrInsufficientBalance) {
					t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("decrease balance: %v", err)
				}
				if updated.Version != 2 {
					t.Fatalf("expected version bump to 2, got %d", updated.Version)
				}
				if err := tx.Commit(); err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			got, err := repo.GetByUserID(ctx, w.UserID)
			if err != nil {
				t.Fatalf("get after decrease: %v", err)
			}

			if !got.Balance.Equal(decimal.RequireFromString(tt.wantBalance)) {
				t.Fatalf("final balance mismatch: want %s, got %s", tt.wantBalance, got.Balance)
			}
		})
	}
}

func TestWallets_IncreaseBalance(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	w := seedWallet(t, db, "0.10")
	ctx := t.Context()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	updated, err := repo.IncreaseBalance(ctx, tx, w.ID, decimal.RequireFromString("0.20"))
	if err != nil {
		t.Fatalf("increase: %v", err)
	}

	if !updated.Balance.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("want 0.30, got %s", updated.Balance)
	}

	_, err = repo.IncreaseBalance(ctx, tx, uuid.New(), decimal.NewFromInt(1))
	if !errors.Is(err, wallets.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestWallets_LockMissing(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	_, err = repo.LockByUserID(ctx, tx, uuid.New())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = repo.LockByID(ctx, tx, uuid.New())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWallets_DecreaseBalance_ConcurrentGuard(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	w := seedWallet(t, db, "1000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	worker := func(name string) {
		defer wg.Done()

		ctx := context.Background()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Errorf("[%s] begin tx: %v", name, err)
			return
		}
		defer tx.Rollback()

		_, err = repo.LockByUserID(ctx, tx, w.UserID)
		if err != nil {
			t.Errorf("[%s] lock wallet: %v", name, err)
			return
		}

		_, err = repo.DecreaseBalance(ctx, tx, w.ID, decimal.NewFromInt(1000))
		if err == nil {
			mu.Lock()
			success++
			mu.Unlock()
			if err := tx.Commit(); err != nil {
				t.Errorf("[%s] commit: %v", name, err)
			}
			return
		}

		if errors.Is(err, wallets.ErrInsufficientBalance) {
			mu.Lock()
			insufficient++
			mu.Unlock()
			return
		}

		t.Errorf("[%s] unexpected error: %v", name, err)
	}

	wg.Add(2)
	go worker("A")
	go worker("B")
	wg.Wait()

	if success != 1 || insufficient != 1 {
		t.Fatalf("want 1 success and 1 insufficient, got success=%d insufficient=%d", success, insufficient)
	}
}
