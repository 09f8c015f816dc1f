package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecreaseBalance debits the wallet only when it holds at least amount.
// A missing wallet is reported the same way as an insufficient one.
func (r *walletsRepo) DecreaseBalance(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	row := tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance = balance - $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND balance >= $2
		RETURNING `+walletColumns,
		walletID, amount)

	w, err := scanWallet(row)
	if err != nil {
		// the balance >= 0 constraint backs up the guard above
		if errors.Is(err, sql.ErrNoRows) || pgutils.IsCheckViolation(err) {
			return models.Wallet{}, wallets.ErrInsufficientBalance
		}

		return models.Wallet{}, fmt.Errorf("decrease balance: %w", err)
	}

	return w, nil
}
