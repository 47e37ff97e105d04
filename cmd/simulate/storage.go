package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"token-curve-engine/internal/config"
	"token-curve-engine/internal/storage"
	chstore "token-curve-engine/internal/storage/clickhouse"
	"token-curve-engine/internal/storage/memory"
	"token-curve-engine/internal/storage/migrations"
	pgstore "token-curve-engine/internal/storage/postgres"
	"token-curve-engine/internal/storage/retry"
	"token-curve-engine/internal/storage/sqlite"
)

type stores struct {
	store   storage.Store
	archive storage.TradeArchive // nil without a ClickHouse DSN
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage builds the configured state store and optional trade archive.
func openStorage(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Driver {
	case config.DriverMemory:
		s.store = memory.NewStore()

	case config.DriverPostgres:
		pool, err := pgstore.Connect(ctx, cfg.PostgresDSN, cfg.ConnectRetries, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.store = pgstore.NewStore(pool)

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { db.Close() })
		s.store = sqlite.NewStore(db)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := retry.Do(ctx, log, "clickhouse migrations", cfg.ConnectRetries, func() (*chstore.Conn, error) {
			return migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.archive = chstore.NewTradeArchive(conn)
	}
	return s, nil
}
