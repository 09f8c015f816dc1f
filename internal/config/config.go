package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD" envDefault:""`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix string `env:"REDIS_QUEUE_PREFIX" envDefault:"walletpay:jobs"`
}

// KafkaConfig is optional; publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:""`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"walletpay.settlement"`
}

type WorkerConfig struct {
	Concurrency         int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	ProviderTimeout     time.Duration `env:"WORKER_PROVIDER_TIMEOUT" envDefault:"10s"`
	JobLease            time.Duration `env:"WORKER_JOB_LEASE" envDefault:"1m"`
	ClaimWait           time.Duration `env:"WORKER_CLAIM_WAIT" envDefault:"2s"`
	MaintenanceInterval time.Duration `env:"WORKER_MAINTENANCE_INTERVAL" envDefault:"1s"`
}

type ProviderConfig struct {
	SuccessRate float64       `env:"PROVIDER_SUCCESS_RATE" envDefault:"0.8"`
	Latency     time.Duration `env:"PROVIDER_LATENCY" envDefault:"2s"`
}

type ReconcileConfig struct {
	Interval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	StaleAge  time.Duration `env:"RECONCILE_STALE_AGE" envDefault:"5m"`
	BatchSize int           `env:"RECONCILE_BATCH_SIZE" envDefault:"100"`
}
