package billpayments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
)

var (
	ErrBillPaymentNotFound = fmt.Errorf("bill payment %w", models.ErrNotFound)
	ErrDuplicateForTxn     = fmt.Errorf("bill payment for transaction exists: %w", models.ErrConflict)
	ErrUnknownTransaction  = fmt.Errorf("bill payment transaction %w", models.ErrNotFound)
)

// Update carries the mutable fields of a bill payment. Empty strings and a nil
// AdditionalData keep the stored values.
type Update struct {
	Status            models.BillPaymentStatus
	ExternalReference string
	Token             string
	FailureReason     string
	AdditionalData    models.ProviderData
}

type BillPayments interface {
	Insert(ctx context.Context, tx *sql.Tx, bp models.BillPayment) (models.BillPayment, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.BillPayment, error)
	LockByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (models.BillPayment, error)
	Update(ctx context.Context, tx *sql.Tx, id uuid.UUID, upd Update) (models.BillPayment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.BillPayment, error)
	ListStale(ctx context.Context, status models.BillPaymentStatus, olderThan time.Time, limit int) ([]models.BillPayment, error)
}
