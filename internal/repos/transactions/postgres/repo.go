package transactions

import (
	"database/sql"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	"github.com/google/uuid"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

type transactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *transactionsRepo {
	return &transactionsRepo{db: db}
}

const transactionColumns = `id, wallet_id, type, amount, status, reference_transaction_id,
	failure_reason, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var (
		t       models.Transaction
		ref     uuid.NullUUID
		failure sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Status, &ref,
		&failure, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return models.Transaction{}, err
	}

	if ref.Valid {
		id := ref.UUID
		t.ReferenceTransactionID = &id
	}

	t.FailureReason = failure.String

	return t, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}

	return uuid.NullUUID{UUID: *id, Valid: true}
}
