package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	pgtransactions "github.com/fastprodman/walletpay/internal/repos/transactions/postgres"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
	pgwallets "github.com/fastprodman/walletpay/internal/repos/wallets/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type TransactionService struct {
	db       *sql.DB
	txns     transactions.Transactions
	wallets  wallets.Wallets
	enqueuer queue.Enqueuer
	logger   *zap.Logger
}

func New(dbx *sql.DB, enqueuer queue.Enqueuer, logger *zap.Logger) *TransactionService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TransactionService{
		db:       dbx,
		txns:     pgtransactions.New(dbx),
		wallets:  pgwallets.New(dbx),
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// CreateTransaction records a ledger entry without touching the balance.
func (s *TransactionService) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if !t.Type.Valid() || !t.Status.Valid() {
		return models.Transaction{}, fmt.Errorf("create transaction %s/%s: %w", t.Type, t.Status, models.ErrInvalidArgument)
	}

	err := models.ValidateAmount(t.Amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	var created models.Transaction

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		created, err = s.txns.Insert(ctx, tx, t)
		return err
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	return created, nil
}

func (s *TransactionService) FindByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	t, err := s.txns.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}

	return t, nil
}

// FindOneForUser returns ErrForbidden, not ErrNotFound, when the transaction
// exists but sits in another user's wallet.
func (s *TransactionService) FindOneForUser(ctx context.Context, id, userID uuid.UUID) (models.Transaction, error) {
	t, err := s.FindByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}

	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.Transaction{}, fmt.Errorf("find wallet: %w", err)
	}

	if err != nil || w.ID != t.WalletID {
		return models.Transaction{}, fmt.Errorf("transaction %s: %w", id, models.ErrForbidden)
	}

	return t, nil
}

func (s *TransactionService) ListForUser(ctx context.Context, userID uuid.UUID, page models.PageRequest) (models.Page[models.Transaction], error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return models.Page[models.Transaction]{}, fmt.Errorf("list transactions: %w", err)
	}

	page = page.Normalize()

	items, total, err := s.txns.ListByWallet(ctx, w.ID, page)
	if err != nil {
		return models.Page[models.Transaction]{}, fmt.Errorf("list transactions: %w", err)
	}

	return models.Page[models.Transaction]{Items: items, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

func (s *TransactionService) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status models.TransactionStatus,
	failureReason string,
) (models.Transaction, error) {
	var updated models.Transaction

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		updated, err = s.UpdateStatusTx(ctx, tx, id, status, failureReason)

		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	return updated, nil
}

// UpdateStatusTx locks the row and applies the transition inside tx.
// Moving to the current status is a no-op.
func (s *TransactionService) UpdateStatusTx(
	ctx context.Context,
	tx *sql.Tx,
	id uuid.UUID,
	status models.TransactionStatus,
	failureReason string,
) (models.Transaction, error) {
	if !status.Valid() {
		return models.Transaction{}, fmt.Errorf("status %q: %w", status, models.ErrInvalidArgument)
	}

	current, err := s.txns.LockByID(ctx, tx, id)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("lock transaction: %w", err)
	}

	if current.Status == status {
		return current, nil
	}

	if !current.Status.CanTransitionTo(status) {
		return models.Transaction{}, fmt.Errorf("transaction %s %s -> %s: %w", id, current.Status, status, models.ErrConflict)
	}

	updated, err := s.txns.UpdateStatus(ctx, tx, id, status, failureReason)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("update status: %w", err)
	}

	return updated, nil
}

// CreateReversalTransaction records a PENDING REFUND for original without
// moving funds. The wallet service's Refund is the path that settles one.
func (s *TransactionService) CreateReversalTransaction(
	ctx context.Context,
	userID uuid.UUID,
	amount decimal.Decimal,
	originalID uuid.UUID,
	reason string,
) (models.Transaction, error) {
	original, err := s.FindOneForUser(ctx, originalID, userID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create reversal: %w", err)
	}

	if !amount.Equal(original.Amount) {
		return models.Transaction{}, fmt.Errorf("reversal amount %s differs from original %s: %w",
			amount.StringFixed(2), original.Amount.StringFixed(2), models.ErrInvalidArgument)
	}

	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create reversal: %w", err)
	}

	pending, err := models.NewReversal(original, w.Balance, reason)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create reversal: %w", err)
	}

	return s.CreateTransaction(ctx, pending)
}

// FindRefund returns the REFUND that compensates originalID.
func (s *TransactionService) FindRefund(ctx context.Context, originalID uuid.UUID) (models.Transaction, error) {
	t, err := s.txns.GetRefundFor(ctx, originalID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("find refund for %s: %w", originalID, err)
	}

	return t, nil
}

// ListStale returns transactions of typ stuck in status since before olderThan.
func (s *TransactionService) ListStale(
	ctx context.Context,
	typ models.TransactionType,
	status models.TransactionStatus,
	olderThan time.Time,
	limit int,
) ([]models.Transaction, error) {
	items, err := s.txns.ListStale(ctx, typ, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}

	return items, nil
}

// OwnerID resolves the user that owns walletID.
func (s *TransactionService) OwnerID(ctx context.Context, walletID uuid.UUID) (uuid.UUID, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("wallet owner: %w", err)
	}

	return w.UserID, nil
}

// TriggerRollback enqueues the compensation instead of running it inline.
func (s *TransactionService) TriggerRollback(
	ctx context.Context,
	transactionID, userID uuid.UUID,
	amount decimal.Decimal,
	reason string,
) error {
	job, err := queue.NewRollbackJob(queue.RollbackTransaction{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		Reason:        reason,
	})
	if err != nil {
		return fmt.Errorf("trigger rollback: %w", err)
	}

	err = s.enqueuer.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("trigger rollback: %w", err)
	}

	s.logger.Info("rollback enqueued",
		zap.String("transaction_id", transactionID.String()),
		zap.String("job_id", job.ID),
		zap.String("reason", reason),
	)

	return nil
}
