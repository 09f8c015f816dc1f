package billpayments

import (
	"database/sql"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/billpayments"
)

var _ billpayments.BillPayments = (*billPaymentsRepo)(nil)

type billPaymentsRepo struct{ db *sql.DB }

func New(db *sql.DB) *billPaymentsRepo {
	return &billPaymentsRepo{db: db}
}

// selectColumns expects bill_payments aliased as b, its transaction as t and
// the owning wallet as w.
const selectColumns = `b.id, b.transaction_id, b.bill_type, b.bill_reference, b.meter_number,
	b.customer_name, b.status, b.external_reference, b.token, b.failure_reason,
	b.additional_data, b.created_at, b.updated_at, t.amount, w.user_id`

const joinOwner = `
	JOIN transactions t ON t.id = b.transaction_id
	JOIN wallets w ON w.id = t.wallet_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBillPayment(row rowScanner) (models.BillPayment, error) {
	var (
		bp                        models.BillPayment
		extRef, token, failReason sql.NullString
	)

	err := row.Scan(
		&bp.ID, &bp.TransactionID, &bp.BillType, &bp.BillReference, &bp.MeterNumber,
		&bp.CustomerName, &bp.Status, &extRef, &token, &failReason,
		&bp.AdditionalData, &bp.CreatedAt, &bp.UpdatedAt, &bp.Amount, &bp.UserID,
	)
	if err != nil {
		return models.BillPayment{}, err
	}

	bp.ExternalReference = extRef.String
	bp.Token = token.String
	bp.FailureReason = failReason.String

	return bp, nil
}

func collect(rows *sql.Rows) ([]models.BillPayment, error) {
	//nolint:errcheck
	defer rows.Close()

	items := make([]models.BillPayment, 0)

	for rows.Next() {
		bp, err := scanBillPayment(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, bp)
	}

	return items, rows.Err()
}
