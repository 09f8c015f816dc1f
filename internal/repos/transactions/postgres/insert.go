package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	"github.com/jackc/pgx/v5/pgconn"
)

const oneRefundIndex = "transactions_one_refund_idx"

func (r *transactionsRepo) Insert(ctx context.Context, tx *sql.Tx, t models.Transaction) (models.Transaction, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (id, wallet_id, type, amount, status,
			reference_transaction_id, failure_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING `+transactionColumns,
		t.ID, t.WalletID, t.Type, t.Amount, t.Status,
		nullUUID(t.ReferenceTransactionID), t.FailureReason, t.Metadata)

	inserted, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == oneRefundIndex {
			return models.Transaction{}, transactions.ErrAlreadyRefunded
		}

		if pgutils.IsUniqueViolation(err) {
			return models.Transaction{}, transactions.ErrDuplicateTransaction
		}

		if pgutils.IsForeignKeyViolation(err) {
			return models.Transaction{}, transactions.ErrUnknownWallet
		}

		if pgutils.IsCheckViolation(err) {
			return models.Transaction{}, fmt.Errorf("%w: %s", transactions.ErrInvalidTransaction, constraintName(err))
		}

		return models.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return inserted, nil
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}

	return ""
}
