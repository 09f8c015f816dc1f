package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (r *walletsRepo) IncreaseBalance(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	row := tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance = balance + $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+walletColumns,
		walletID, amount)

	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, wallets.ErrWalletNotFound
		}

		return models.Wallet{}, fmt.Errorf("increase balance: %w", err)
	}

	return w, nil
}
