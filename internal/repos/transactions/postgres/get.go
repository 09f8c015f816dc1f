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

func (r *transactionsRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, id)

	return getResult(row, "get transaction")
}

func (r *transactionsRepo) LockByID(ctx context.Context, tx *sql.Tx, id uuid.UUID) (models.Transaction, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id)

	return getResult(row, "lock transaction")
}

func (r *transactionsRepo) GetRefundFor(ctx context.Context, originalID uuid.UUID) (models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reference_transaction_id = $1
		  AND type = 'REFUND'
	`, originalID)

	return getResult(row, "get refund")
}

func getResult(row *sql.Row, step string) (models.Transaction, error) {
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, transactions.ErrTransactionNotFound
		}

		return models.Transaction{}, fmt.Errorf("%s: %w", step, err)
	}

	return t, nil
}
