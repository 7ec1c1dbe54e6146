package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/roach88/khatm/internal/khatm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultBusyTimeout is how long a connection waits on a locked database
// before SQLite reports SQLITE_BUSY.
const DefaultBusyTimeout = 10 * time.Second

// DefaultReadConns is the size of the read-path connection pool.
const DefaultReadConns = 4

// Store is the Counter Store.
//
// It holds two handles on the same database file: a single-connection writer
// used only through Update, and a pooled query-only reader for the read path.
// WAL mode lets readers proceed while the writer holds its lock.
type Store struct {
	db *sql.DB // writer
	ro *sql.DB // reader
}

type options struct {
	busyTimeout time.Duration
	readConns   int
}

// Option configures Open.
type Option func(*options)

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithReadConns overrides DefaultReadConns.
func WithReadConns(n int) Option {
	return func(o *options) {
		o.readConns = n
	}
}

// Open creates or opens the SQLite database at path and migrates it to the
// latest schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - a busy timeout (default 10s) bounding each attempt's wait for the lock
//   - BEGIN IMMEDIATE transactions on the writer
//   - foreign key enforcement
//
// path must name a file; ":memory:" would give the two handles two
// different databases.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout, readConns: DefaultReadConns}
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" || path == ":memory:" {
		return nil, fmt.Errorf("open store: a database file path is required")
	}

	db, err := sql.Open("sqlite3", dsn(path, o, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	ro, err := sql.Open("sqlite3", dsn(path, o, true))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read handle: %w", err)
	}
	ro.SetMaxOpenConns(o.readConns)
	ro.SetMaxIdleConns(o.readConns)

	return &Store{db: db, ro: ro}, nil
}

func dsn(path string, o options, readOnly bool) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	if readOnly {
		q.Set("_query_only", "true")
	} else {
		q.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes both database handles.
func (s *Store) Close() error {
	var errs []error
	if s.ro != nil {
		errs = append(errs, s.ro.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// applyPragmas sets database-wide SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Update runs fn inside one BEGIN IMMEDIATE transaction on the writer.
// A nil return from fn commits. Lock contention anywhere in the transaction
// surfaces as an error wrapping khatm.ErrContention.
func (s *Store) Update(ctx context.Context, fn func(tx khatm.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&tx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// classify wraps err with op, adding khatm.ErrContention when SQLite reports
// the database as busy or locked.
func classify(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %w", op, khatm.ErrContention, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// querier is satisfied by *sql.DB and *sql.Tx so the read helpers serve both
// the write transaction and the read path.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exec builds and runs a squirrel statement.
func exec(ctx context.Context, q querier, op string, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return classify(op, err)
	}
	return nil
}
