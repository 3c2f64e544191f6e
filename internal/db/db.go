package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/shalteor/quassel-tools/internal/db/schema"
)

var (
	ErrUserExists      = errors.New("user already exists")
	ErrDatabaseMissing = errors.New("database file does not exist")
)

// DBTX is the subset of database/sql used by the user operations.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a handle on a Quassel core SQLite database
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens an existing Quassel core database. The file and its schema
// must already exist; nothing is created.
func Open(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseMissing, path)
		}
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}

	return open(ctx, dsn(path, "rw"), path, logger)
}

// Create creates a new database file at path and applies the user schema to it
func Create(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	db, err := open(ctx, dsn(path, "rwc"), path, logger)
	if err != nil {
		return nil, err
	}

	if err := schema.Apply(ctx, db.conn); err != nil {
		db.Close()
		return nil, err
	}

	db.logger.Info("schema initialized")
	return db, nil
}

// New wraps an already opened connection
func New(conn *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{conn: conn, logger: logger}
}

// dsn builds a SQLite URI for path. SQLite decodes the percent escapes, so a
// '#', '?' or '%' in the file name stays part of the path.
func dsn(path, mode string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=" + mode + "&_busy_timeout=5000"
}

func open(ctx context.Context, dsn, path string, logger *zap.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// operations are never interleaved on this handle
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to open database file %s: %w", path, err)
	}

	db := New(conn, logger)
	db.path = path
	db.logger = db.logger.With(zap.String("database", path))
	db.logger.Debug("database opened")

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx begins a transaction, runs fn with the transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.logger.Warn("rollback failed", zap.Error(rbErr))
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()

	err = fn(ctx, tx)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
