package wallets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/walletpay/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound      = fmt.Errorf("wallet %w", models.ErrNotFound)
	ErrWalletExists        = fmt.Errorf("wallet already exists: %w", models.ErrConflict)
	ErrInsufficientBalance = fmt.Errorf("wallet: %w", models.ErrInsufficientBalance)
)

type Wallets interface {
	Create(ctx context.Context, tx *sql.Tx, wallet models.Wallet) (models.Wallet, error)
	GetByID(ctx context.Context, walletID uuid.UUID) (models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	LockByUserID(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (models.Wallet, error)
	LockByID(ctx context.Context, tx *sql.Tx, walletID uuid.UUID) (models.Wallet, error)
	IncreaseBalance(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount decimal.Decimal) (models.Wallet, error)
	DecreaseBalance(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount decimal.Decimal) (models.Wallet, error)
}
