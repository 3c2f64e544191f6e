// Package schema carries the subset of the Quassel core SQLite schema the
// user tools touch, as goose migrations. The core normally creates this
// schema itself; the tools only apply it on explicit request.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var Migrations embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Apply runs the embedded migrations against db
func Apply(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
