package wallets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
)

func (r *walletsRepo) Create(ctx context.Context, tx *sql.Tx, wallet models.Wallet) (models.Wallet, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO wallets (id, user_id, balance)
		VALUES ($1, $2, $3)
		RETURNING `+walletColumns,
		wallet.ID, wallet.UserID, wallet.Balance)

	created, err := scanWallet(row)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return models.Wallet{}, wallets.ErrWalletExists
		}

		return models.Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}

	return created, nil
}
