package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
)

// ListByWallet returns one newest-first page and the wallet's total count.
func (r *transactionsRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, page models.PageRequest) ([]models.Transaction, int, error) {
	page = page.Normalize()

	var total int

	err := r.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM transactions
		WHERE wallet_id = $1
	`, walletID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, walletID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// ListStale returns transactions of typ that have sat in status since before
// olderThan, oldest first.
func (r *transactionsRepo) ListStale(
	ctx context.Context,
	typ models.TransactionType,
	status models.TransactionStatus,
	olderThan time.Time,
	limit int,
) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE type = $1
		  AND status = $2
		  AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4
	`, typ, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}

	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.Transaction, error) {
	//nolint:errcheck
	defer rows.Close()

	items := make([]models.Transaction, 0)

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		items = append(items, t)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return items, nil
}
