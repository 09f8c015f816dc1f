package main

import (
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/config"
)

const (
	queueDriverRedis  = "redis"
	queueDriverMemory = "memory"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" envDefault:"8080"`
	LogLevel        string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	AppEnv          string        `env:"APP_ENV" envDefault:"PROD"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// QueueDriver selects redis (durable) or memory (single process, tests).
	QueueDriver string `env:"QUEUE_DRIVER" envDefault:"redis"`

	Postgres  config.PostgresConfig
	Redis     config.RedisConfig
	Kafka     config.KafkaConfig
	Worker    config.WorkerConfig
	Provider  config.ProviderConfig
	Reconcile config.ReconcileConfig
}

func (c *apiConfig) validate() error {
	switch c.QueueDriver {
	case queueDriverRedis, queueDriverMemory:
	default:
		return fmt.Errorf("unknown QUEUE_DRIVER %q", c.QueueDriver)
	}

	if c.Provider.SuccessRate < 0 || c.Provider.SuccessRate > 1 {
		return fmt.Errorf("PROVIDER_SUCCESS_RATE must be within [0,1], got %v", c.Provider.SuccessRate)
	}

	// a lease that expires mid-call hands the running job to another worker
	if c.Worker.JobLease <= c.Worker.ProviderTimeout {
		return fmt.Errorf("WORKER_JOB_LEASE (%s) must exceed WORKER_PROVIDER_TIMEOUT (%s)",
			c.Worker.JobLease, c.Worker.ProviderTimeout)
	}

	return nil
}
