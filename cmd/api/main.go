package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/walletpay/internal/api"
	"github.com/fastprodman/walletpay/internal/infra/logging"
	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/fastprodman/walletpay/internal/infra/pgutils"
	"github.com/fastprodman/walletpay/internal/infra/redisutil"
	"github.com/fastprodman/walletpay/internal/notify"
	"github.com/fastprodman/walletpay/internal/provider"
	"github.com/fastprodman/walletpay/internal/queue"
	"github.com/fastprodman/walletpay/internal/queue/memqueue"
	"github.com/fastprodman/walletpay/internal/queue/redisqueue"
	"github.com/fastprodman/walletpay/internal/reconcile"
	"github.com/fastprodman/walletpay/internal/services/billpayment"
	"github.com/fastprodman/walletpay/internal/services/transaction"
	"github.com/fastprodman/walletpay/internal/services/wallet"
	"github.com/fastprodman/walletpay/internal/worker"
	"github.com/fastprodman/walletpay/pkg/envconf"
	"github.com/fastprodman/walletpay/pkg/shutdownqueue"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.validate()
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logger, err := logging.New("walletpay-api", cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	//nolint:errcheck
	defer logger.Sync()

	sq := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := sq.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	sq.Add("postgres", func(context.Context) error {
		return dbConns.Close()
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jobs, maintain, err := openQueue(ctx, cfg, sq, logger)
	if err != nil {
		return err
	}

	var publisher notify.Publisher = notify.Nop{}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafka(notify.NewKafkaWriter(cfg.Kafka, logger.Named("kafka")))
		publisher = kp

		sq.Add("kafka writer", func(context.Context) error {
			return kp.Close()
		})

		logger.Info("kafka publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// --- Services ---
	walletSrv := wallet.New(dbConns, logger.Named("wallet"))
	txnSrv := transaction.New(dbConns, jobs, logger.Named("transaction"))
	billSrv := billpayment.New(dbConns, walletSrv, txnSrv, jobs, logger.Named("billpayment"))

	handlers := worker.NewHandlers(worker.Deps{
		BillPayments:    billSrv,
		Transactions:    txnSrv,
		Wallets:         walletSrv,
		Provider:        provider.NewSimulated(cfg.Provider, provider.WithLogger(logger.Named("provider"))),
		Publisher:       publisher,
		Metrics:         m,
		Logger:          logger.Named("worker"),
		ProviderTimeout: cfg.Worker.ProviderTimeout,
	})

	pool := worker.NewPool(jobs, cfg.Worker, m, logger.Named("worker"))
	handlers.Register(pool)

	reconciler := reconcile.New(billSrv, txnSrv, cfg.Reconcile, m, logger.Named("reconcile"))

	// --- Background ---
	bgCtx, cancelBg := context.WithCancel(context.WithoutCancel(ctx))
	bg := new(errgroup.Group)

	bg.Go(func() error { return pool.Run(bgCtx) })
	bg.Go(func() error { return reconciler.Run(bgCtx) })

	if maintain != nil {
		bg.Go(func() error { return maintain(bgCtx) })
	}

	sq.Add("background workers", func(c context.Context) error {
		cancelBg()

		done := make(chan error, 1)
		go func() { done <- bg.Wait() }()

		select {
		case err := <-done:
			return err
		case <-c.Done():
			return fmt.Errorf("wait for workers: %w", c.Err())
		}
	})

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(api.Deps{
		Wallets:      walletSrv,
		Transactions: txnSrv,
		BillPayments: billSrv,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       logger.Named("http"),
	}))

	sq.Add("http server", func(c context.Context) error {
		logger.Info("shutting down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	logger.Info("API started",
		zap.Uint16("port", cfg.Port),
		zap.String("queue_driver", cfg.QueueDriver),
		zap.Int("workers", cfg.Worker.Concurrency),
	)

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

// openQueue returns the configured job queue and, for redis, the loop that
// promotes due retries and reclaims expired leases.
func openQueue(
	ctx context.Context,
	cfg *apiConfig,
	sq *shutdownqueue.Queue,
	logger *zap.Logger,
) (queue.Queue, func(context.Context) error, error) {
	if cfg.QueueDriver == queueDriverMemory {
		logger.Warn("using in-memory job queue; pending jobs are lost on restart")
		return memqueue.New(), nil, nil
	}

	rdb, err := redisutil.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("open redis: %w", err)
	}

	sq.Add("redis", func(context.Context) error {
		return rdb.Close()
	})

	q := redisqueue.New(rdb, redisqueue.Options{
		Prefix: cfg.Redis.KeyPrefix,
		Lease:  cfg.Worker.JobLease,
	})

	maintain := func(ctx context.Context) error {
		return q.RunMaintenance(ctx, cfg.Worker.MaintenanceInterval, logger.Named("queue"))
	}

	return q, maintain, nil
}
