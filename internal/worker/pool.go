// Package worker runs queued settlement jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/config"
	"github.com/fastprodman/walletpay/internal/infra/logging"
	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/fastprodman/walletpay/internal/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Handler func(ctx context.Context, job queue.Job) error

// FailedHook observes jobs moved to the failed set.
type FailedHook func(ctx context.Context, job queue.Job, cause error)

var errNoHandler = errors.New("no handler for job kind")

const claimErrorBackoff = 500 * time.Millisecond

// Pool claims jobs with a fixed number of goroutines. A claimed job runs
// to completion even after Run's context is cancelled.
type Pool struct {
	consumer    queue.Consumer
	handlers    map[queue.Kind]Handler
	onFailed    FailedHook
	concurrency int
	claimWait   time.Duration
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *zap.Logger
}

func NewPool(consumer queue.Consumer, cfg config.WorkerConfig, m *metrics.Metrics, logger *zap.Logger) *Pool {
	if m == nil {
		m = metrics.New(nil)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Pool{
		consumer:    consumer,
		handlers:    make(map[queue.Kind]Handler),
		concurrency: concurrency,
		claimWait:   cfg.ClaimWait,
		metrics:     m,
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
	}
}

func (p *Pool) Handle(kind queue.Kind, h Handler) {
	p.handlers[kind] = h
}

func (p *Pool) OnFailed(hook FailedHook) {
	p.onFailed = hook
}

// Run blocks until ctx is cancelled and every goroutine has finished its
// current job.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range p.concurrency {
		g.Go(func() error {
			return p.loop(gctx, i)
		})
	}

	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, n int) error {
	log := p.logger.With(zap.Int("worker", n))

	for {
		if ctx.Err() != nil {
			return nil
		}

		job, ok, err := p.consumer.Claim(ctx, p.claimWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			log.Warn("claim failed", zap.Error(err))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(claimErrorBackoff):
			}

			continue
		}

		if !ok {
			continue
		}

		p.Execute(context.WithoutCancel(ctx), job)
	}
}

// Execute runs one claimed job and settles it on the queue: ack on
// success, fail when permanent or out of attempts, otherwise retry with
// backoff.
func (p *Pool) Execute(ctx context.Context, job queue.Job) {
	kind := string(job.Kind)

	ctx, span := p.tracer.Start(ctx, "job "+kind, trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", kind),
		attribute.Int("job.attempt", job.Attempt),
	))
	defer span.End()

	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("kind", kind),
		zap.Int("attempt", job.Attempt),
	}
	if sc := span.SpanContext(); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
	}

	log := p.logger.With(fields...)
	ctx = logging.ContextWithLogger(ctx, log)

	start := time.Now()
	err := p.run(ctx, job)
	p.metrics.JobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	var outcome string

	switch {
	case err == nil:
		outcome = "completed"
		err = p.consumer.Ack(ctx, job)
		if err != nil {
			log.Error("ack failed", zap.Error(err))
		}
	case queue.IsPermanent(err) || job.Exhausted():
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("job failed", zap.Error(err))

		failErr := p.consumer.Fail(ctx, job, err)
		if failErr != nil {
			log.Error("fail job failed", zap.Error(failErr))
		}

		if p.onFailed != nil {
			p.onFailed(ctx, job, err)
		}
	default:
		outcome = "retried"
		delay := job.RetryDelay()
		span.RecordError(err)
		log.Info("job will be retried", zap.Duration("delay", delay), zap.Error(err))

		retryErr := p.consumer.Retry(ctx, job, delay, err)
		if retryErr != nil {
			log.Error("retry job failed", zap.Error(retryErr))
		}
	}

	p.metrics.JobsProcessed.WithLabelValues(kind, outcome).Inc()
}

func (p *Pool) run(ctx context.Context, job queue.Job) (err error) {
	h, ok := p.handlers[job.Kind]
	if !ok {
		return queue.Permanent(fmt.Errorf("%w: %s", errNoHandler, job.Kind))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return h(ctx, job)
}
