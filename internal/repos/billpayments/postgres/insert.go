package billpayments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/billpayments"
)

func (r *billPaymentsRepo) Insert(ctx context.Context, tx *sql.Tx, bp models.BillPayment) (models.BillPayment, error) {
	data := bp.AdditionalData
	if data == nil {
		data = models.ProviderData{}
	}

	row := tx.QueryRowContext(ctx, `
		WITH b AS (
			INSERT INTO bill_payments (id, transaction_id, bill_type, bill_reference,
				meter_number, customer_name, status, additional_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING *
		)
		SELECT `+selectColumns+`
		FROM b`+joinOwner,
		bp.ID, bp.TransactionID, bp.BillType, bp.BillReference,
		bp.MeterNumber, bp.CustomerName, bp.Status, data)

	inserted, err := scanBillPayment(row)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return models.BillPayment{}, billpayments.ErrDuplicateForTxn
		}

		if pgutils.IsForeignKeyViolation(err) {
			return models.BillPayment{}, billpayments.ErrUnknownTransaction
		}

		return models.BillPayment{}, fmt.Errorf("insert bill payment: %w", err)
	}

	return inserted, nil
}
