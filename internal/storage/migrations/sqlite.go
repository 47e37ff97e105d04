package migrations

import (
	"context"
	"database/sql"
)

// RunSQLiteMigrations applies the embedded sqlite schema. The driver executes every
// statement of a multi-statement string.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	return apply(SQLiteFS, "sqlite", func(ddl string) error {
		_, err := db.ExecContext(ctx, ddl)
		return err
	})
}
