package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trail-go/internal/database/migrations"
	"trail-go/internal/trail"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is fixed width so that created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements trail.Store on SQLite. Trails and their positions
// are normalized into two tables; every write runs in a transaction.
type SQLiteStore struct {
	db   *sql.DB
	ids  trail.IDGenerator
	path string
}

// NewSQLiteStore opens the database at path, applies pending migrations and
// returns the store. path can be a file path or ":memory:".
func NewSQLiteStore(path string, ids trail.IDGenerator) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return NewSQLiteStoreFromDB(db, path, ids), nil
}

// NewSQLiteStoreFromDB wraps an existing, migrated connection.
func NewSQLiteStoreFromDB(db *sql.DB, path string, ids trail.IDGenerator) *SQLiteStore {
	if ids == nil {
		ids = trail.UUIDGenerator{}
	}
	return &SQLiteStore{db: db, ids: ids, path: path}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// The pool is limited to one connection: an in-memory database exists per
// connection, and SQLite serializes writers anyway.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Create inserts the trail and its positions.
func (s *SQLiteStore) Create(ctx context.Context, scope string, rec *trail.Record) (string, error) {
	id := s.ids.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trails (id, scope, name, created_at, version) VALUES (?, ?, ?, ?, 1)`,
		id, scope, rec.Name, rec.Timestamp.UTC().Format(timeLayout),
	); err != nil {
		return "", fmt.Errorf("inserting trail: %w", err)
	}
	if err := insertPaths(ctx, tx, id, rec.Paths); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

// Get loads one trail with its positions.
func (s *SQLiteStore) Get(ctx context.Context, scope, id string) (*trail.Record, error) {
	return loadRecord(ctx, s.db, scope, id)
}

// List loads every trail in scope, oldest first.
func (s *SQLiteStore) List(ctx context.Context, scope string) ([]*trail.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, name, created_at, version FROM trails WHERE scope = ? ORDER BY created_at, id`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("listing trails: %w", err)
	}
	out := []*trail.Record{}
	byID := map[string]*trail.Record{}
	for rows.Next() {
		rec, err := scanTrail(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, rec)
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing trails: %w", err)
	}
	rows.Close()

	prows, err := s.db.QueryContext(ctx, `
		SELECT p.trail_id, p.segment, p.latitude, p.longitude
		FROM positions p JOIN trails t ON t.id = p.trail_id
		WHERE t.scope = ?
		ORDER BY p.trail_id, p.segment, p.seq`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var trailID string
		var segment int
		var pos trail.Position
		if err := prows.Scan(&trailID, &segment, &pos.Latitude, &pos.Longitude); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		if rec, ok := byID[trailID]; ok {
			rec.Paths = appendPosition(rec.Paths, segment, pos)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	return out, nil
}

// Update applies patch inside a transaction.
func (s *SQLiteStore) Update(ctx context.Context, scope, id string, patch trail.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := loadRecord(ctx, tx, scope, id)
	if err != nil {
		return err
	}
	next, err := trail.ApplyPatch(current, patch)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE trails SET name = ?, version = ? WHERE id = ? AND scope = ? AND version = ?`,
		next.Name, next.Version, id, scope, current.Version,
	); err != nil {
		return fmt.Errorf("updating trail: %w", err)
	}
	if patch.Paths != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE trail_id = ?`, id); err != nil {
			return fmt.Errorf("clearing positions: %w", err)
		}
		if err := insertPaths(ctx, tx, id, next.Paths); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes the trail; positions follow through the foreign key.
func (s *SQLiteStore) Delete(ctx context.Context, scope, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trails WHERE id = ? AND scope = ?`, id, scope)
	if err != nil {
		return fmt.Errorf("deleting trail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting trail: %w", err)
	}
	if n == 0 {
		return trail.NotFoundError(id)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func loadRecord(ctx context.Context, q querier, scope, id string) (*trail.Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, scope, name, created_at, version FROM trails WHERE id = ? AND scope = ?`,
		id, scope,
	)
	rec, err := scanTrail(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, trail.NotFoundError(id)
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT segment, latitude, longitude FROM positions WHERE trail_id = ? ORDER BY segment, seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var segment int
		var pos trail.Position
		if err := rows.Scan(&segment, &pos.Latitude, &pos.Longitude); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		rec.Paths = appendPosition(rec.Paths, segment, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrail(row scanner) (*trail.Record, error) {
	var rec trail.Record
	var created string
	if err := row.Scan(&rec.ID, &rec.Scope, &rec.Name, &created, &rec.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning trail: %w", err)
	}
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	rec.Timestamp = ts
	rec.Paths = []trail.Path{}
	return &rec, nil
}

// appendPosition adds pos to segment, growing paths as segments appear.
// Rows arrive ordered by segment then seq.
func appendPosition(paths []trail.Path, segment int, pos trail.Position) []trail.Path {
	for len(paths) <= segment {
		paths = append(paths, trail.Path{})
	}
	paths[segment] = append(paths[segment], pos)
	return paths
}

func insertPaths(ctx context.Context, tx *sql.Tx, id string, paths []trail.Path) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO positions (trail_id, segment, seq, latitude, longitude) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing position insert: %w", err)
	}
	defer stmt.Close()

	for seg, path := range paths {
		for seq, pos := range path {
			if _, err := stmt.ExecContext(ctx, id, seg, seq, pos.Latitude, pos.Longitude); err != nil {
				return fmt.Errorf("inserting position %d/%d: %w", seg, seq, err)
			}
		}
	}
	return nil
}

// Compile-time check that SQLiteStore implements trail.Store interface
var _ trail.Store = (*SQLiteStore)(nil)
