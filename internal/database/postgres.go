package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trail-go/internal/trail"
)

// Querier represents the minimal database operations the Postgres store uses.
// Both *pgxpool.Pool and pgxmock pools satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSchema creates the trails table. Paths are stored as a JSONB
// array of arrays of {latitude, longitude}.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS trails (
	id         TEXT PRIMARY KEY,
	scope      TEXT NOT NULL,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	paths      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trails_scope_created ON trails (scope, created_at, id);
`

var (
	newPoolFn  = pgxpool.New
	pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

// ConnectPostgres opens a pool and checks the server is reachable.
func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := newPoolFn(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pingPoolFn(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// PostgresStore implements trail.Store on PostgreSQL. Every operation is a
// single statement; conditional updates are resolved by the WHERE clause.
type PostgresStore struct {
	db    Querier
	ids   trail.IDGenerator
	close func()
}

// NewPostgresStore creates a store over db. closeFn, if set, is called by Close.
func NewPostgresStore(db Querier, ids trail.IDGenerator, closeFn func()) *PostgresStore {
	if ids == nil {
		ids = trail.UUIDGenerator{}
	}
	return &PostgresStore{db: db, ids: ids, close: closeFn}
}

// EnsureSchema creates the trails table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Create inserts the trail. created_at keeps microseconds, so the
// timestamp is truncated to trail.TimestampPrecision before the insert.
func (s *PostgresStore) Create(ctx context.Context, scope string, rec *trail.Record) (string, error) {
	paths, err := json.Marshal(rec.Paths)
	if err != nil {
		return "", fmt.Errorf("encoding paths: %w", err)
	}
	id := s.ids.New()
	if _, err := s.db.Exec(ctx, `
		INSERT INTO trails (id, scope, name, created_at, version, paths)
		VALUES ($1, $2, $3, $4, 1, $5)
	`, id, scope, rec.Name, rec.Timestamp.UTC().Truncate(trail.TimestampPrecision), paths); err != nil {
		return "", fmt.Errorf("inserting trail: %w", err)
	}
	return id, nil
}

// Get loads one trail.
func (s *PostgresStore) Get(ctx context.Context, scope, id string) (*trail.Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, scope, name, created_at, version, paths
		FROM trails
		WHERE scope = $1 AND id = $2
	`, scope, id)
	rec, err := scanPgTrail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, trail.NotFoundError(id)
		}
		return nil, err
	}
	return rec, nil
}

// List loads every trail in scope, oldest first.
func (s *PostgresStore) List(ctx context.Context, scope string) ([]*trail.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, scope, name, created_at, version, paths
		FROM trails
		WHERE scope = $1
		ORDER BY created_at, id
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("listing trails: %w", err)
	}
	defer rows.Close()

	out := []*trail.Record{}
	for rows.Next() {
		rec, err := scanPgTrail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing trails: %w", err)
	}
	return out, nil
}

// Update applies patch in one statement. When no row matches, a follow-up
// read tells a missing trail apart from a version mismatch.
func (s *PostgresStore) Update(ctx context.Context, scope, id string, patch trail.Patch) error {
	var paths []byte
	if patch.Paths != nil {
		var err error
		if paths, err = json.Marshal(patch.Paths); err != nil {
			return fmt.Errorf("encoding paths: %w", err)
		}
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE trails
		SET name = COALESCE($3, name),
		    paths = COALESCE($4, paths),
		    version = version + 1
		WHERE scope = $1 AND id = $2 AND ($5::bigint = 0 OR version = $5::bigint)
	`, scope, id, patch.Name, paths, patch.IfVersion)
	if err != nil {
		return fmt.Errorf("updating trail: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var version int64
	err = s.db.QueryRow(ctx, `SELECT version FROM trails WHERE scope = $1 AND id = $2`, scope, id).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return trail.NotFoundError(id)
		}
		return fmt.Errorf("reading trail version: %w", err)
	}
	return fmt.Errorf("%w: trail %s at version %d, expected %d", trail.ErrRevisionConflict, id, version, patch.IfVersion)
}

// Delete removes the trail.
func (s *PostgresStore) Delete(ctx context.Context, scope, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM trails WHERE scope = $1 AND id = $2`, scope, id)
	if err != nil {
		return fmt.Errorf("deleting trail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trail.NotFoundError(id)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func scanPgTrail(row pgx.Row) (*trail.Record, error) {
	var rec trail.Record
	var paths []byte
	if err := row.Scan(&rec.ID, &rec.Scope, &rec.Name, &rec.Timestamp, &rec.Version, &paths); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning trail: %w", err)
	}
	if err := json.Unmarshal(paths, &rec.Paths); err != nil {
		return nil, fmt.Errorf("decoding paths of %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// Compile-time check that PostgresStore implements trail.Store interface
var _ trail.Store = (*PostgresStore)(nil)
