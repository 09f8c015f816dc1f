package billpayment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/fastprodman/walletpay/internal/repos/billpayments"
	pgbillpayments "github.com/fastprodman/walletpay/internal/repos/billpayments/postgres"
	"github.com/fastprodman/walletpay/internal/services/transaction"
	"github.com/fastprodman/walletpay/internal/services/wallet"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BillPaymentService struct {
	db       *sql.DB
	bills    billpayments.BillPayments
	wallets  *wallet.WalletService
	txns     *transaction.TransactionService
	enqueuer queue.Enqueuer
	logger   *zap.Logger
}

func New(
	dbx *sql.DB,
	wallets *wallet.WalletService,
	txns *transaction.TransactionService,
	enqueuer queue.Enqueuer,
	logger *zap.Logger,
) *BillPaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BillPaymentService{
		db:       dbx,
		bills:    pgbillpayments.New(dbx),
		wallets:  wallets,
		txns:     txns,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Create runs the request flow in a single DB transaction:
//
// 1) Lock wallet and deduct (PENDING BILL_PAYMENT entry).
// 2) Insert the PENDING bill payment pointing at it.
//
// After commit it enqueues the process job. An enqueue failure is logged and
// left to the reconciliation sweep; the caller still gets the PENDING payment.
func (s *BillPaymentService) Create(ctx context.Context, userID uuid.UUID, req models.CreateBillPayment) (models.BillPayment, error) {
	err := req.Validate()
	if err != nil {
		return models.BillPayment{}, fmt.Errorf("create bill payment: %w", err)
	}

	var created models.BillPayment

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		debit, err := s.wallets.DeductTx(ctx, tx, userID, req.Amount, models.TransactionBillPayment, models.Metadata{
			Description:   fmt.Sprintf("%s bill payment", req.BillType),
			BillType:      req.BillType,
			BillReference: req.BillReference,
		})
		if err != nil {
			return fmt.Errorf("deduct: %w", err)
		}

		created, err = s.bills.Insert(ctx, tx, models.BillPayment{
			ID:            uuid.New(),
			TransactionID: debit.ID,
			BillType:      req.BillType,
			BillReference: req.BillReference,
			MeterNumber:   req.MeterNumber,
			CustomerName:  req.CustomerName,
			Status:        models.BillPaymentPending,
		})
		if err != nil {
			return fmt.Errorf("insert bill payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.BillPayment{}, fmt.Errorf("create bill payment: %w", err)
	}

	log := s.logger.With(
		zap.String("bill_payment_id", created.ID.String()),
		zap.String("transaction_id", created.TransactionID.String()),
		zap.String("user_id", userID.String()),
	)

	err = s.enqueueProcess(ctx, created)
	if err != nil {
		log.Error("enqueue process job failed; left for reconciliation", zap.Error(err))
		return created, nil
	}

	log.Info("bill payment accepted", zap.String("amount", created.Amount.StringFixed(2)))

	return created, nil
}

// Requeue enqueues the process job for an existing payment again.
func (s *BillPaymentService) Requeue(ctx context.Context, bp models.BillPayment) error {
	return s.enqueueProcess(ctx, bp)
}

func (s *BillPaymentService) enqueueProcess(ctx context.Context, bp models.BillPayment) error {
	job, err := queue.NewProcessJob(queue.ProcessBillPayment{
		BillPaymentID: bp.ID,
		TransactionID: bp.TransactionID,
		UserID:        bp.UserID,
		Amount:        bp.Amount,
	})
	if err != nil {
		return err
	}

	return s.enqueuer.Enqueue(ctx, job)
}

func (s *BillPaymentService) FindByID(ctx context.Context, id uuid.UUID) (models.BillPayment, error) {
	bp, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return models.BillPayment{}, fmt.Errorf("find bill payment: %w", err)
	}

	return bp, nil
}

// FindOneForUser distinguishes a foreign payment (ErrForbidden) from a
// missing one (ErrNotFound).
func (s *BillPaymentService) FindOneForUser(ctx context.Context, id, userID uuid.UUID) (models.BillPayment, error) {
	bp, err := s.FindByID(ctx, id)
	if err != nil {
		return models.BillPayment{}, err
	}

	if bp.UserID != userID {
		return models.BillPayment{}, fmt.Errorf("bill payment %s: %w", id, models.ErrForbidden)
	}

	return bp, nil
}

func (s *BillPaymentService) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]models.BillPayment, error) {
	items, err := s.bills.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bill payments: %w", err)
	}

	return items, nil
}

// ListStale returns payments sitting in status since before olderThan.
func (s *BillPaymentService) ListStale(
	ctx context.Context,
	status models.BillPaymentStatus,
	olderThan time.Time,
	limit int,
) ([]models.BillPayment, error) {
	items, err := s.bills.ListStale(ctx, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale bill payments: %w", err)
	}

	return items, nil
}

func (s *BillPaymentService) MarkProcessing(ctx context.Context, id uuid.UUID) (models.BillPayment, error) {
	return s.transition(ctx, id, models.TransactionProcessing, billpayments.Update{
		Status: models.BillPaymentProcessing,
	})
}

func (s *BillPaymentService) MarkComplete(ctx context.Context, id uuid.UUID, result models.ProviderResult) (models.BillPayment, error) {
	return s.transition(ctx, id, models.TransactionCompleted, billpayments.Update{
		Status:            models.BillPaymentCompleted,
		ExternalReference: result.Reference,
		Token:             result.Token,
		AdditionalData:    result.Data,
	})
}

func (s *BillPaymentService) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (models.BillPayment, error) {
	return s.transition(ctx, id, models.TransactionFailed, billpayments.Update{
		Status:        models.BillPaymentFailed,
		FailureReason: reason,
	})
}

// transition moves the bill payment and its transaction together. Locks are
// taken bill payment first, then transaction.
func (s *BillPaymentService) transition(
	ctx context.Context,
	id uuid.UUID,
	txnStatus models.TransactionStatus,
	upd billpayments.Update,
) (models.BillPayment, error) {
	var updated models.BillPayment

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		bp, err := s.bills.LockByID(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock bill payment: %w", err)
		}

		if bp.Status == upd.Status {
			updated = bp
			return nil
		}

		if !bp.Status.CanTransitionTo(upd.Status) {
			return fmt.Errorf("bill payment %s %s -> %s: %w", id, bp.Status, upd.Status, models.ErrConflict)
		}

		_, err = s.txns.UpdateStatusTx(ctx, tx, bp.TransactionID, txnStatus, upd.FailureReason)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		updated, err = s.bills.Update(ctx, tx, id, upd)
		if err != nil {
			return fmt.Errorf("update bill payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.BillPayment{}, fmt.Errorf("mark %s: %w", upd.Status, err)
	}

	return updated, nil
}
