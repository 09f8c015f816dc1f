package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/fastprodman/walletpay/internal/infra/logging"
	"github.com/fastprodman/walletpay/pkg/envconf"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

const seedMigrationsTable = "seed_migrations"

type migratorConfig struct {
	DSN      string `env:"PG_DSN"`
	LogLevel string `env:"APP_LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"PROD"`
}

func main() {
	_ = godotenv.Load()

	cfg := new(migratorConfig)

	err := envconf.Load(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("walletpay-migrator", cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	err = migrateAll(cfg, logger)
	if err != nil {
		logger.Error("migration run failed", zap.Error(err))
		_ = logger.Sync()
		//nolint:gocritic
		os.Exit(1)
	}

	logger.Info("migration run finished successfully")
	_ = logger.Sync()
}

func migrateAll(cfg *migratorConfig, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	err = db.Ping()
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	err = runMigrations(driver, baseFS, "migrations")
	if err != nil {
		return fmt.Errorf("base migrations failed: %w", err)
	}

	logger.Info("base migrations applied")

	if cfg.AppEnv == "DEV" {
		// seeds track their own versions so they never collide with the schema
		seedDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: seedMigrationsTable})
		if err != nil {
			return fmt.Errorf("init seed driver: %w", err)
		}

		err = runMigrations(seedDriver, devFS, "test_data")
		if err != nil {
			return fmt.Errorf("dev seed migrations failed: %w", err)
		}

		logger.Info("dev seed migrations applied")
	}

	return nil
}

func runMigrations(driver database.Driver, fsys embed.FS, dir string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	return nil
}
