package wallets

import (
	"database/sql"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
)

var _ wallets.Wallets = (*walletsRepo)(nil)

type walletsRepo struct{ db *sql.DB }

func New(db *sql.DB) *walletsRepo {
	return &walletsRepo{db: db}
}

const walletColumns = `id, user_id, balance, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (models.Wallet, error) {
	var w models.Wallet

	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return models.Wallet{}, err
	}

	return w, nil
}
