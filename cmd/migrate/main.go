package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"token-curve-engine/internal/config"
	"token-curve-engine/internal/logger"
	chstore "token-curve-engine/internal/storage/clickhouse"
	"token-curve-engine/internal/storage/migrations"
	pgstore "token-curve-engine/internal/storage/postgres"
	"token-curve-engine/internal/storage/retry"
	"token-curve-engine/internal/storage/sqlite"
)

func main() {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", os.Getenv("CURVE_ENGINE_CONFIG"), "Path to the YAML config file (optional)")
	skipClickhouse := flag.Bool("skip-clickhouse", false, "Do not migrate the ClickHouse trade archive")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, cfg.Storage, *skipClickhouse, log); err != nil {
		log.Error("migration failed", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}
	log.Info("migrations applied")
}

func migrate(ctx context.Context, cfg config.StorageConfig, skipClickhouse bool, log *zap.Logger) error {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := pgstore.Connect(ctx, cfg.PostgresDSN, cfg.ConnectRetries, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		log.Info("postgres migrated")

	case config.DriverSQLite:
		// Open applies the embedded schema.
		db, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return err
		}
		db.Close()
		log.Info("sqlite migrated", zap.String("path", cfg.SQLitePath))

	case config.DriverMemory:
		log.Info("memory driver has no schema")
	}

	if cfg.ClickHouseDSN == "" || skipClickhouse {
		return nil
	}
	// The target database may not exist yet, so the migration itself is retried.
	conn, err := retry.Do(ctx, log, "clickhouse migrations", cfg.ConnectRetries, func() (*chstore.Conn, error) {
		return migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("clickhouse migrated")
	return nil
}
