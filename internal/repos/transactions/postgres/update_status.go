package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	"github.com/google/uuid"
)

// UpdateStatus writes status unconditionally; transition rules are checked by
// callers while they hold the row lock. An empty failureReason keeps the
// stored one.
func (r *transactionsRepo) UpdateStatus(
	ctx context.Context,
	tx *sql.Tx,
	id uuid.UUID,
	status models.TransactionStatus,
	failureReason string,
) (models.Transaction, error) {
	row := tx.QueryRowContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    failure_reason = COALESCE(NULLIF($3, ''), failure_reason),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+transactionColumns,
		id, status, failureReason)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, transactions.ErrTransactionNotFound
		}

		return models.Transaction{}, fmt.Errorf("update transaction status: %w", err)
	}

	return t, nil
}
