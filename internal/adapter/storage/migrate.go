package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations for dialect to db.
func Migrate(ctx context.Context, dialect goose.Dialect, db *sql.DB) error {
	dir := "migrations/postgres"
	if dialect == goose.DialectMySQL {
		dir = "migrations/mysql"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("fs.Sub[%s]: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose.NewProvider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("provider.Up: %w", err)
	}

	for _, r := range results {
		slog.Info("migration applied", "dialect", dialect, "version", r.Source.Version, "duration", r.Duration)
	}

	return nil
}
