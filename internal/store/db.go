// Package store persists phone links, claims, transaction history and
// pending plans in SQLite or Postgres. Every query is written once with ?
// placeholders and rebound for the active driver. Row-level atomicity comes
// from conditional UPDATEs and upserts, never from application locks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func ParseDriver(v string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w %q (expected sqlite|postgres)", ErrUnsupportedDriver, v)
	}
}

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

type DB struct {
	db     *sql.DB
	driver Driver
}

// Open connects and applies the schema. For sqlite, dsn is a file path and
// its parent directory is created.
func Open(ctx context.Context, driver Driver, dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty dsn", ErrOpenDatabase)
	}
	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			path := dsn
			if i := strings.IndexByte(path, '?'); i >= 0 {
				path = path[:i]
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("%w: create store directory: %v", ErrOpenDatabase, err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
		conn, err = sql.Open("sqlite", dsn)
	case DriverPostgres:
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenDatabase, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrOpenDatabase, err)
	}
	d := &DB{db: conn, driver: driver}
	if err := d.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Driver() Driver { return d.driver }

func (d *DB) PingContext(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) Links() *Links     { return &Links{db: d} }
func (d *DB) Claims() *Claims   { return &Claims{db: d} }
func (d *DB) History() *History { return &History{db: d} }
func (d *DB) Plans() *Plans     { return &Plans{db: d} }

// BIGINT holds unix milliseconds; INTEGER columns hold 0/1 flags. Both
// spellings work on sqlite and postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS phone_wallets (
		phone_hash TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_claims (
		id TEXT PRIMARY KEY,
		claim_token TEXT NOT NULL UNIQUE,
		phone_hash TEXT NOT NULL,
		amount TEXT NOT NULL,
		token TEXT NOT NULL,
		sender_address TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		claimed INTEGER NOT NULL DEFAULT 0,
		redeemed_by TEXT NOT NULL DEFAULT '',
		redeemed_at BIGINT NOT NULL DEFAULT 0,
		payout_tx_hash TEXT NOT NULL DEFAULT '',
		payout_error TEXT NOT NULL DEFAULT '',
		funding_id TEXT NOT NULL DEFAULT ''
	)`,
	"CREATE INDEX IF NOT EXISTS idx_pending_claims_phone ON pending_claims(phone_hash, expires_at)",
	"CREATE INDEX IF NOT EXISTS idx_pending_claims_funding ON pending_claims(funding_id)",
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		token_in TEXT NOT NULL DEFAULT '',
		token_out TEXT NOT NULL DEFAULT '',
		amount_in TEXT NOT NULL DEFAULT '',
		amount_out TEXT NOT NULL DEFAULT '',
		counterparty_address TEXT NOT NULL DEFAULT '',
		counterparty_phone TEXT NOT NULL DEFAULT '',
		chain TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		original_command TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		confirmed_at BIGINT NOT NULL DEFAULT 0
	)`,
	"CREATE INDEX IF NOT EXISTS idx_transactions_wallet_created ON transactions(wallet_address, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_transactions_tx_hash ON transactions(tx_hash)",
	"CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)",
	`CREATE TABLE IF NOT EXISTS pending_plans (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		from_address TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		payload TEXT NOT NULL
	)`,
	"CREATE INDEX IF NOT EXISTS idx_pending_plans_created ON pending_plans(created_at)",
}

func (d *DB) migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := d.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init store schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *DB) rebind(q string) string {
	if d.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (d *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.rebind(q), args...)
}

func (d *DB) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.rebind(q), args...)
}

func (d *DB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.rebind(q), args...)
}

// changed reports whether a conditional statement touched a row.
func changed(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func optionalMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return toMillis(*t)
}

func optionalTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := fromMillis(ms)
	return &t
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
