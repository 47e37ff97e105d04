package migrations

import (
	"context"

	"token-curve-engine/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded postgres schema. Each file runs as one
// multi-statement Exec.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	return apply(PostgresFS, "postgres", func(sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	})
}
