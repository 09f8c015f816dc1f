package wallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	pgtransactions "github.com/fastprodman/walletpay/internal/repos/transactions/postgres"
	"github.com/fastprodman/walletpay/internal/repos/wallets"
	pgwallets "github.com/fastprodman/walletpay/internal/repos/wallets/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService owns every balance mutation. Each operation is one database
// transaction that locks the wallet row first.
type WalletService struct {
	db      *sql.DB
	wallets wallets.Wallets
	txns    transactions.Transactions
	logger  *zap.Logger
}

func New(dbx *sql.DB, logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WalletService{
		db:      dbx,
		wallets: pgwallets.New(dbx),
		txns:    pgtransactions.New(dbx),
		logger:  logger,
	}
}

// Create opens an empty wallet for userID.
func (s *WalletService) Create(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	var created models.Wallet

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		created, err = s.wallets.Create(ctx, tx, models.Wallet{
			ID:      uuid.New(),
			UserID:  userID,
			Balance: decimal.Zero,
		})

		return err
	})
	if err != nil {
		return models.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}

	return created, nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}

// GetBalance reads without locking.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return w.Balance, nil
}

// Fund credits the wallet and records a COMPLETED WALLET_FUNDING entry.
func (s *WalletService) Fund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Transaction, error) {
	err := models.ValidateAmount(amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("fund wallet: %w", err)
	}

	var funded models.Transaction

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := s.wallets.LockByUserID(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		prev := w.Balance

		funded, err = s.txns.Insert(ctx, tx, models.Transaction{
			ID:       uuid.New(),
			WalletID: w.ID,
			Type:     models.TransactionWalletFunding,
			Amount:   amount,
			Status:   models.TransactionCompleted,
			Metadata: models.Metadata{
				Description:     "Wallet funding",
				PreviousBalance: &prev,
			},
		})
		if err != nil {
			return fmt.Errorf("insert funding transaction: %w", err)
		}

		_, err = s.wallets.IncreaseBalance(ctx, tx, w.ID, amount)
		if err != nil {
			return fmt.Errorf("increase balance: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("fund wallet: %w", err)
	}

	s.logger.Info("wallet funded",
		zap.String("user_id", userID.String()),
		zap.String("transaction_id", funded.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)

	return funded, nil
}

// Deduct debits the user's wallet in its own database transaction.
func (s *WalletService) Deduct(
	ctx context.Context,
	userID uuid.UUID,
	amount decimal.Decimal,
	typ models.TransactionType,
	meta models.Metadata,
) (models.Transaction, error) {
	var debit models.Transaction

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		debit, err = s.DeductTx(ctx, tx, userID, amount, typ, meta)

		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	return debit, nil
}

// DeductTx is Deduct inside a caller-owned transaction, so the debit can
// commit together with the caller's own rows. It locks the wallet, checks
// the balance, writes a PENDING entry carrying the pre-debit balance and
// decrements.
func (s *WalletService) DeductTx(
	ctx context.Context,
	tx *sql.Tx,
	userID uuid.UUID,
	amount decimal.Decimal,
	typ models.TransactionType,
	meta models.Metadata,
) (models.Transaction, error) {
	err := models.ValidateAmount(amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("deduct: %w", err)
	}

	if typ != models.TransactionBillPayment {
		return models.Transaction{}, fmt.Errorf("deduct as %s: %w", typ, models.ErrInvalidArgument)
	}

	w, err := s.wallets.LockByUserID(ctx, tx, userID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("lock wallet: %w", err)
	}

	// pre-check against the locked balance
	if w.Balance.LessThan(amount) {
		return models.Transaction{}, fmt.Errorf("deduct %s from %s: %w",
			amount.StringFixed(2), w.Balance.StringFixed(2), wallets.ErrInsufficientBalance)
	}

	prev := w.Balance
	meta.PreviousBalance = &prev

	debit, err := s.txns.Insert(ctx, tx, models.Transaction{
		ID:       uuid.New(),
		WalletID: w.ID,
		Type:     typ,
		Amount:   amount,
		Status:   models.TransactionPending,
		Metadata: meta,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("insert debit transaction: %w", err)
	}

	_, err = s.wallets.DecreaseBalance(ctx, tx, w.ID, amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("decrease balance: %w", err)
	}

	return debit, nil
}

// Refund compensates a debit: it credits the wallet, records a COMPLETED
// REFUND pointing at the original and marks the original REVERSED.
// A second call for the same transaction fails with models.ErrAlreadyReversed.
func (s *WalletService) Refund(ctx context.Context, transactionID uuid.UUID, reason string) (models.Transaction, error) {
	original, err := s.txns.GetByID(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("refund: %w", err)
	}

	var refund models.Transaction

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := s.wallets.LockByID(ctx, tx, original.WalletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		// re-read under the wallet lock; the first read may be stale
		locked, err := s.txns.LockByID(ctx, tx, transactionID)
		if err != nil {
			return fmt.Errorf("lock transaction: %w", err)
		}

		pending, err := models.NewReversal(locked, w.Balance, reason)
		if err != nil {
			return err
		}

		refund, err = s.txns.Insert(ctx, tx, pending)
		if err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}

		_, err = s.wallets.IncreaseBalance(ctx, tx, w.ID, locked.Amount)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		_, err = s.txns.UpdateStatus(ctx, tx, locked.ID, models.TransactionReversed, "")
		if err != nil {
			return fmt.Errorf("mark original reversed: %w", err)
		}

		refund, err = s.txns.UpdateStatus(ctx, tx, refund.ID, models.TransactionCompleted, "")
		if err != nil {
			return fmt.Errorf("complete refund: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("refund %s: %w", transactionID, err)
	}

	s.logger.Info("transaction refunded",
		zap.String("transaction_id", transactionID.String()),
		zap.String("refund_id", refund.ID.String()),
		zap.String("amount", refund.Amount.StringFixed(2)),
	)

	return refund, nil
}

// History returns a newest-first page of the user's ledger.
func (s *WalletService) History(ctx context.Context, userID uuid.UUID, page models.PageRequest) (models.Page[models.Transaction], error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return models.Page[models.Transaction]{}, fmt.Errorf("history: %w", err)
	}

	page = page.Normalize()

	items, total, err := s.txns.ListByWallet(ctx, w.ID, page)
	if err != nil {
		return models.Page[models.Transaction]{}, fmt.Errorf("history: %w", err)
	}

	return models.Page[models.Transaction]{
		Items: items,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	}, nil
}
