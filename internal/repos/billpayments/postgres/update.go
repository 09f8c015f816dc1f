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

func (r *billPaymentsRepo) Update(ctx context.Context, tx *sql.Tx, id uuid.UUID, upd billpayments.Update) (models.BillPayment, error) {
	var data any
	if upd.AdditionalData != nil {
		data = upd.AdditionalData
	}

	row := tx.QueryRowContext(ctx, `
		WITH b AS (
			UPDATE bill_payments
			SET status = $2,
			    external_reference = COALESCE(NULLIF($3, ''), external_reference),
			    token = COALESCE(NULLIF($4, ''), token),
			    failure_reason = COALESCE(NULLIF($5, ''), failure_reason),
			    additional_data = COALESCE($6::jsonb, additional_data),
			    updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+selectColumns+`
		FROM b`+joinOwner,
		id, upd.Status, upd.ExternalReference, upd.Token, upd.FailureReason, data)

	bp, err := scanBillPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BillPayment{}, billpayments.ErrBillPaymentNotFound
		}

		return models.BillPayment{}, fmt.Errorf("update bill payment: %w", err)
	}

	return bp, nil
}
