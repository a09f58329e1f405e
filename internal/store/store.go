package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Options configures the connection pool
type Options struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the pantry database. Inside WithTx every method runs on the
// transaction instead of the pool.
type Store struct {
	db   *sqlx.DB
	ext  sqlx.ExtContext
	inTx bool
}

// NewStore creates a new database store
func NewStore(opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverPostgres
	}
	if opts.Driver != DriverPostgres && opts.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := sqlx.Connect(opts.Driver, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Driver == DriverSQLite {
		// one writer; an in-memory database also lives only as long as its connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(valueOr(opts.MaxOpenConns, 25))
		db.SetMaxIdleConns(valueOr(opts.MaxIdleConns, 5))
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		} else {
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, ext: db}, nil
}

func valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Migrate applies the embedded goose migrations
func (s *Store) Migrate(ctx context.Context) error {
	dialect := "postgres"
	if s.db.DriverName() == DriverSQLite {
		dialect = "sqlite3"
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn inside a transaction, rolling back on error or panic.
// Calls made while already inside a transaction join it.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Store{db: s.db, ext: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) rebind(query string) string {
	return s.ext.Rebind(query)
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.ext, dest, s.rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.ext, dest, s.rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.ext.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// now is the timestamp written to rows; UTC so both drivers round-trip it
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
