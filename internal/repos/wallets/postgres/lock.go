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

// LockByUserID selects the user's wallet FOR UPDATE. The row stays locked
// until tx ends.
func (r *walletsRepo) LockByUserID(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (models.Wallet, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)

	return lockResult(row)
}

func (r *walletsRepo) LockByID(ctx context.Context, tx *sql.Tx, walletID uuid.UUID) (models.Wallet, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, walletID)

	return lockResult(row)
}

func lockResult(row *sql.Row) (models.Wallet, error) {
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, wallets.ErrWalletNotFound
		}

		return models.Wallet{}, fmt.Errorf("lock wallet: %w", err)
	}

	return w, nil
}
