package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table PostgresStore uses when none is given.
const DefaultTable = "scrape_rate_limits"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// querier is the subset of pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore shares rate-limit state between processes through one table.
// Each reservation is a single upsert, so the read-modify-write is atomic on
// the server.
type PostgresStore struct {
	db    querier
	pool  *pgxpool.Pool
	table string
}

// OpenPostgres connects to dsn and returns a store using DefaultTable.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	store, err := newPostgresStore(pool, DefaultTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.pool = pool
	return store, nil
}

func newPostgresStore(db querier, table string) (*PostgresStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the state table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	platform_key    TEXT PRIMARY KEY,
	last_request_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating %s: %w", s.table, err)
	}
	return nil
}

// Reserve implements Store.
func (s *PostgresStore) Reserve(ctx context.Context, key string, interval time.Duration, now time.Time) (time.Time, error) {
	query, args, err := s.reserveQuery(key, interval, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("building reserve query: %w", err)
	}

	var slot time.Time
	if err := s.db.QueryRow(ctx, query, args...).Scan(&slot); err != nil {
		return time.Time{}, fmt.Errorf("reserving slot: %w", err)
	}
	return slot, nil
}

// Last implements Store.
func (s *PostgresStore) Last(ctx context.Context, key string) (time.Time, bool, error) {
	query, args, err := s.lastQuery(key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("building last query: %w", err)
	}

	var last time.Time
	if err := s.db.QueryRow(ctx, query, args...).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading last request: %w", err)
	}
	return last, true, nil
}

func (s *PostgresStore) reserveQuery(key string, interval time.Duration, now time.Time) (string, []interface{}, error) {
	return sq.Insert(s.table).
		Columns("platform_key", "last_request_at").
		Values(key, now.UTC()).
		Suffix(fmt.Sprintf(
			"ON CONFLICT (platform_key) DO UPDATE SET last_request_at = GREATEST(EXCLUDED.last_request_at, %s.last_request_at + make_interval(secs => ?)) RETURNING last_request_at",
			s.table,
		), interval.Seconds()).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (s *PostgresStore) lastQuery(key string) (string, []interface{}, error) {
	return sq.Select("last_request_at").
		From(s.table).
		Where(sq.Eq{"platform_key": key}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}
