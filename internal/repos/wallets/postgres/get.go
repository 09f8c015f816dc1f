package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
	"github.com/google/uuid"
)

func (r *walletsRepo) GetByID(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
	`, walletID)

	return getResult(row)
}

func (r *walletsRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
	`, userID)

	return getResult(row)
}

func getResult(row *sql.Row) (models.Wallet, error) {
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, wallets.ErrWalletNotFound
		}

		return models.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}
