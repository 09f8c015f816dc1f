package billpayments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/billpayments"
	"github.com/google/uuid"
)

func (r *billPaymentsRepo) GetByID(ctx context.Context, id uuid.UUID) (models.BillPayment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM bill_payments b`+joinOwner+`
		WHERE b.id = $1
	`, id)

	return getResult(row, "get bill payment")
}

// LockByID locks only the bill_payments row; the transaction row is locked
// separately by the caller when it needs to change.
func (r *billPaymentsRepo) LockByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (models.BillPayment, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM bill_payments b`+joinOwner+`
		WHERE b.id = $1
		FOR UPDATE OF b
	`, id)

	return getResult(row, "lock bill payment")
}

func getResult(row *sql.Row, step string) (models.BillPayment, error) {
	bp, err := scanBillPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BillPayment{}, billpayments.ErrBillPaymentNotFound
		}

		return models.BillPayment{}, fmt.Errorf("%s: %w", step, err)
	}

	return bp, nil
}
