package billpayments

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
)

func (r *billPaymentsRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.BillPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM bill_payments b`+joinOwner+`
		WHERE w.user_id = $1
		ORDER BY b.created_at DESC, b.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bill payments: %w", err)
	}

	items, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("scan bill payments: %w", err)
	}

	return items, nil
}

func (r *billPaymentsRepo) ListStale(
	ctx context.Context,
	status models.BillPaymentStatus,
	olderThan time.Time,
	limit int,
) ([]models.BillPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM bill_payments b`+joinOwner+`
		WHERE b.status = $1
		  AND b.updated_at < $2
		ORDER BY b.created_at
		LIMIT $3
	`, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale bill payments: %w", err)
	}

	items, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("scan stale bill payments: %w", err)
	}

	return items, nil
}
