// Package reconcile re-enqueues work that fell between a commit and its
// queue write.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/config"
	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BillPayments interface {
	ListStale(ctx context.Context, status models.BillPaymentStatus, olderThan time.Time, limit int) ([]models.BillPayment, error)
	Requeue(ctx context.Context, bp models.BillPayment) error
}

type Transactions interface {
	ListStale(
		ctx context.Context,
		typ models.TransactionType,
		status models.TransactionStatus,
		olderThan time.Time,
		limit int,
	) ([]models.Transaction, error)
	OwnerID(ctx context.Context, walletID uuid.UUID) (uuid.UUID, error)
	TriggerRollback(ctx context.Context, transactionID, userID uuid.UUID, amount decimal.Decimal, reason string) error
}

type Result struct {
	Processes int
	Rollbacks int
}

type Reconciler struct {
	bills   BillPayments
	txns    Transactions
	cfg     config.ReconcileConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func New(
	bills BillPayments,
	txns Transactions,
	cfg config.ReconcileConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	if m == nil {
		m = metrics.New(nil)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}

	return &Reconciler{
		bills:   bills,
		txns:    txns,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Sweep runs one pass. Errors on single items are logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context) (Result, error) {
	var res Result

	cutoff := r.now().Add(-r.cfg.StaleAge)

	pending, err := r.bills.ListStale(ctx, models.BillPaymentPending, cutoff, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("sweep pending bill payments: %w", err)
	}

	for _, bp := range pending {
		err = r.bills.Requeue(ctx, bp)
		if err != nil {
			r.logger.Warn("requeue bill payment failed", zap.String("bill_payment_id", bp.ID.String()), zap.Error(err))
			continue
		}

		res.Processes++
		r.metrics.ReconcileRequeues.WithLabelValues(string(queue.KindProcessBillPayment)).Inc()
	}

	failed, err := r.txns.ListStale(ctx, models.TransactionBillPayment, models.TransactionFailed, cutoff, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("sweep failed transactions: %w", err)
	}

	for _, txn := range failed {
		log := r.logger.With(zap.String("transaction_id", txn.ID.String()))

		userID, err := r.txns.OwnerID(ctx, txn.WalletID)
		if err != nil {
			log.Warn("resolve owner failed", zap.Error(err))
			continue
		}

		err = r.txns.TriggerRollback(ctx, txn.ID, userID, txn.Amount, txn.FailureReason)
		if err != nil {
			log.Warn("requeue rollback failed", zap.Error(err))
			continue
		}

		res.Rollbacks++
		r.metrics.ReconcileRequeues.WithLabelValues(string(queue.KindRollbackTransaction)).Inc()
	}

	return res, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := r.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				r.logger.Error("reconcile sweep failed", zap.Error(err))
				continue
			}

			if res.Processes > 0 || res.Rollbacks > 0 {
				r.logger.Info("reconcile sweep requeued jobs",
					zap.Int("processes", res.Processes),
					zap.Int("rollbacks", res.Rollbacks),
				)
			}
		}
	}
}
