package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/infra/logging"
	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/fastprodman/walletpay/internal/models"
	"github.com/fastprodman/walletpay/internal/notify"
	"github.com/fastprodman/walletpay/internal/provider"
	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/fastprodman/walletpay/internal/repos/transactions"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "github.com/fastprodman/walletpay/internal/worker"

	// recordAttempts bounds how often a known decline is written before the
	// job is handed back to the queue.
	recordAttempts = 4
)

type BillPayments interface {
	MarkProcessing(ctx context.Context, id uuid.UUID) (models.BillPayment, error)
	MarkComplete(ctx context.Context, id uuid.UUID, result models.ProviderResult) (models.BillPayment, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (models.BillPayment, error)
}

type Transactions interface {
	FindByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	FindRefund(ctx context.Context, originalID uuid.UUID) (models.Transaction, error)
	TriggerRollback(ctx context.Context, transactionID, userID uuid.UUID, amount decimal.Decimal, reason string) error
}

type Refunder interface {
	Refund(ctx context.Context, transactionID uuid.UUID, reason string) (models.Transaction, error)
}

type Deps struct {
	BillPayments    BillPayments
	Transactions    Transactions
	Wallets         Refunder
	Provider        provider.Adapter
	Publisher       notify.Publisher
	Metrics         *metrics.Metrics
	Tracer          trace.Tracer
	Logger          *zap.Logger
	ProviderTimeout time.Duration
	// RecordBackoff is the first pause between attempts to record a
	// provider decline; it doubles up to recordAttempts tries.
	RecordBackoff   time.Duration
}

// Handlers settles bill payments and runs compensations.
type Handlers struct {
	bills     BillPayments
	txns      Transactions
	wallets   Refunder
	provider  provider.Adapter
	publisher notify.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
	timeout   time.Duration
	backoff   time.Duration
}

func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		bills:     d.BillPayments,
		txns:      d.Transactions,
		wallets:   d.Wallets,
		provider:  d.Provider,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		tracer:    d.Tracer,
		logger:    d.Logger,
		timeout:   d.ProviderTimeout,
		backoff:   d.RecordBackoff,
	}

	if h.publisher == nil {
		h.publisher = notify.Nop{}
	}

	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}

	if h.tracer == nil {
		h.tracer = otel.Tracer(tracerName)
	}

	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	if h.timeout <= 0 {
		h.timeout = 10 * time.Second
	}

	if h.backoff <= 0 {
		h.backoff = 200 * time.Millisecond
	}

	return h
}

// Register binds the handlers to their job kinds on p.
func (h *Handlers) Register(p *Pool) {
	p.Handle(queue.KindProcessBillPayment, h.ProcessBillPayment)
	p.Handle(queue.KindRollbackTransaction, h.RollbackTransaction)
	p.OnFailed(h.JobFailed)
}

// ProcessBillPayment drives one bill payment through the provider.
// The transaction status read at the start decides what a redelivery does:
//
//	COMPLETED, REVERSED  ack, nothing to do
//	FAILED               enqueue the rollback again and fail
//	PROCESSING           a previous attempt reached the provider; alert and fail
func (h *Handlers) ProcessBillPayment(ctx context.Context, job queue.Job) error {
	var p queue.ProcessBillPayment

	err := job.Decode(&p)
	if err != nil {
		return queue.Permanent(fmt.Errorf("decode process payload: %w", err))
	}

	log := logging.FromContext(ctx, h.logger).With(
		zap.String("bill_payment_id", p.BillPaymentID.String()),
		zap.String("transaction_id", p.TransactionID.String()),
	)

	txn, err := h.txns.FindByID(ctx, p.TransactionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return queue.Permanent(err)
		}

		return err
	}

	switch txn.Status {
	case models.TransactionCompleted, models.TransactionReversed:
		log.Info("bill payment already settled", zap.String("status", string(txn.Status)))
		return nil
	case models.TransactionFailed:
		err = h.txns.TriggerRollback(ctx, p.TransactionID, p.UserID, p.Amount, txn.FailureReason)
		if err != nil {
			return err
		}

		return queue.Permanent(fmt.Errorf("bill payment failed earlier: %s: %w", txn.FailureReason, models.ErrExternalService))
	case models.TransactionProcessing:
		log.Error("bill payment outcome unknown; provider not called again")
		h.publish(ctx, log, notify.Event{
			Type:          notify.EventPaymentOutcomeUnknown,
			TransactionID: p.TransactionID,
			BillPaymentID: &p.BillPaymentID,
			UserID:        p.UserID,
			Amount:        p.Amount,
			Reason:        "redelivered while PROCESSING",
		})

		return queue.Permanent(fmt.Errorf("transaction %s outcome unknown: %w", p.TransactionID, models.ErrExternalService))
	}

	bp, err := h.bills.MarkProcessing(ctx, p.BillPaymentID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	res, callErr := h.settle(ctx, bp, p)
	if callErr == nil {
		_, err = h.bills.MarkComplete(ctx, bp.ID, res)
		if err != nil {
			log.Error("provider settled but completion was not recorded",
				zap.String("reference", res.Reference), zap.Error(err))
			return fmt.Errorf("mark complete: %w", err)
		}

		log.Info("bill payment completed", zap.String("reference", res.Reference))
		h.publish(ctx, log, notify.Event{
			Type:          notify.EventBillPaymentCompleted,
			TransactionID: p.TransactionID,
			BillPaymentID: &p.BillPaymentID,
			UserID:        p.UserID,
			Amount:        p.Amount,
			Reference:     res.Reference,
		})

		return nil
	}

	reason := provider.FailureReason(callErr)

	// A redelivery would find PROCESSING and treat the outcome as unknown,
	// so the decline is recorded here while it is still known.
	err = h.markFailed(ctx, log, bp.ID, reason)
	if err != nil {
		log.Error("provider declined but failure was not recorded",
			zap.String("reason", reason), zap.Error(err))
		return fmt.Errorf("mark failed: %w", err)
	}

	err = h.txns.TriggerRollback(ctx, p.TransactionID, p.UserID, p.Amount, reason)
	if err != nil {
		// the FAILED guard re-enqueues it on the next attempt
		return fmt.Errorf("trigger rollback: %w", err)
	}

	log.Warn("bill payment failed", zap.String("reason", reason), zap.Error(callErr))
	h.publish(ctx, log, notify.Event{
		Type:          notify.EventBillPaymentFailed,
		TransactionID: p.TransactionID,
		BillPaymentID: &p.BillPaymentID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Reason:        reason,
	})

	return queue.Permanent(fmt.Errorf("settle bill payment %s: %s: %w", bp.ID, reason, models.ErrExternalService))
}

func (h *Handlers) markFailed(ctx context.Context, log *zap.Logger, id uuid.UUID, reason string) error {
	delay := h.backoff

	var err error

	for attempt := 1; attempt <= recordAttempts; attempt++ {
		_, err = h.bills.MarkFailed(ctx, id, reason)
		if err == nil || errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			return err
		}

		if attempt == recordAttempts {
			break
		}

		log.Warn("record failure retry", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}

		delay *= 2
	}

	return err
}

func (h *Handlers) settle(ctx context.Context, bp models.BillPayment, p queue.ProcessBillPayment) (models.ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "provider.ProcessPayment", trace.WithAttributes(
		attribute.String("bill.type", string(bp.BillType)),
		attribute.String("transaction.id", p.TransactionID.String()),
	))
	defer span.End()

	res, err := h.provider.ProcessPayment(ctx, provider.Request{
		BillType:      bp.BillType,
		BillReference: bp.BillReference,
		Amount:        p.Amount,
		CustomerName:  bp.CustomerName,
		TransactionID: p.TransactionID,
		UserID:        p.UserID,
	})

	outcome := "success"

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "failure"
	}

	h.metrics.ProviderCalls.WithLabelValues(string(bp.BillType), outcome).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	return res, err
}

// RollbackTransaction refunds a failed debit. An already reversed
// transaction acks without touching the wallet.
func (h *Handlers) RollbackTransaction(ctx context.Context, job queue.Job) error {
	var p queue.RollbackTransaction

	err := job.Decode(&p)
	if err != nil {
		return queue.Permanent(fmt.Errorf("decode rollback payload: %w", err))
	}

	log := logging.FromContext(ctx, h.logger).With(zap.String("transaction_id", p.TransactionID.String()))

	txn, err := h.txns.FindByID(ctx, p.TransactionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return queue.Permanent(err)
		}

		return err
	}

	switch txn.Status {
	case models.TransactionReversed:
		refund, err := h.txns.FindRefund(ctx, p.TransactionID)
		if err != nil {
			log.Warn("transaction reversed but its refund was not found", zap.Error(err))
			return nil
		}

		log.Info("transaction already reversed", zap.String("refund_id", refund.ID.String()))
		return nil
	case models.TransactionCompleted:
		log.Warn("rollback requested for a completed transaction")
		return queue.Permanent(fmt.Errorf("rollback %s: %w", p.TransactionID, models.ErrNotReversible))
	}

	refund, err := h.wallets.Refund(ctx, p.TransactionID, p.Reason)
	switch {
	case errors.Is(err, models.ErrAlreadyReversed), errors.Is(err, transactions.ErrAlreadyRefunded):
		log.Info("transaction reversed concurrently")
		return nil
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrNotFound):
		return queue.Permanent(err)
	case err != nil:
		return err
	}

	log.Info("transaction reversed", zap.String("refund_id", refund.ID.String()))
	h.publish(ctx, log, notify.Event{
		Type:          notify.EventTransactionReversed,
		TransactionID: p.TransactionID,
		UserID:        p.UserID,
		Amount:        refund.Amount,
		Reference:     refund.ID.String(),
		Reason:        p.Reason,
	})

	return nil
}

// JobFailed runs once a job is moved to the failed set. A rollback that
// did not find its transaction settled leaves funds deducted, so it is
// raised as an alert.
func (h *Handlers) JobFailed(ctx context.Context, job queue.Job, cause error) {
	if job.Kind != queue.KindRollbackTransaction || errors.Is(cause, models.ErrNotReversible) {
		return
	}

	var p queue.RollbackTransaction

	log := logging.FromContext(ctx, h.logger).With(zap.String("job_id", job.ID))

	reason := cause.Error()

	err := job.Decode(&p)
	if err != nil {
		log.Error("rollback payload unreadable", zap.Error(err))
		reason = fmt.Sprintf("%s; payload unreadable: %v", reason, err)
	}

	log = log.With(zap.String("transaction_id", p.TransactionID.String()))
	log.Error("rollback exhausted; funds remain deducted",
		zap.Int("attempt", job.Attempt),
		zap.String("amount", p.Amount.StringFixed(2)),
		zap.Error(fmt.Errorf("%w: %w", models.ErrRollbackExhausted, cause)),
	)

	h.metrics.RollbacksExhausted.Inc()
	h.publish(ctx, log, notify.Event{
		Type:          notify.EventRollbackExhausted,
		TransactionID: p.TransactionID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Reason:        reason,
	})
}

func (h *Handlers) publish(ctx context.Context, log *zap.Logger, ev notify.Event) {
	err := h.publisher.Publish(ctx, ev)
	if err != nil {
		log.Warn("publish event failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}
