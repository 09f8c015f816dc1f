package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
)

var (
	ErrDuplicateTransaction = fmt.Errorf("duplicate transaction: %w", models.ErrConflict)
	ErrAlreadyRefunded      = fmt.Errorf("transaction already refunded: %w", models.ErrConflict)
	ErrTransactionNotFound  = fmt.Errorf("transaction %w", models.ErrNotFound)
	ErrUnknownWallet        = fmt.Errorf("transaction wallet %w", models.ErrNotFound)
	ErrInvalidTransaction   = fmt.Errorf("transaction rejected by schema: %w", models.ErrInvalidArgument)
)

type Transactions interface {
	Insert(ctx context.Context, tx *sql.Tx, t models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	LockByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (models.Transaction, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.TransactionStatus, failureReason string) (models.Transaction, error)
	GetRefundFor(ctx context.Context, originalID uuid.UUID) (models.Transaction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, page models.PageRequest) ([]models.Transaction, int, error)
	ListStale(ctx context.Context, typ models.TransactionType, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.Transaction, error)
}
