package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies every pending embedded migration for driver and returns
// the number applied. The goose provider keeps no global state, so several
// databases can be migrated concurrently (tests do this).
func Migrate(ctx context.Context, db *sql.DB, driver string) (int, error) {
	dialect := goose.DialectMySQL
	if DialectOf(driver) == DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	sub, err := fs.Sub(migrations, "migrations/"+DialectOf(driver))
	if err != nil {
		return 0, fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}
