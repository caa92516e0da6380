/*
Package sqlite provides a SQLite-backed implementation of storage.Durable.

PURPOSE:
  The durable record store behind the write-back cache. Every collection
  (teams, games, seasonAggregates, schedules, meta) lives in one records
  table keyed by (collection, key) with the JSON payload in data.

KEY TABLES:
  records:  collection, key, season, data, updated_at

INDEXES:
  - PRIMARY KEY (collection, key):     point reads and upserts
  - idx_records_collection_season:     ordered (season, key) range scans
                                       for the retention sweeper

ATOMICITY:
  Apply() runs the whole batch in one SQL transaction. Any failed statement
  rolls back every write of the batch.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single open connection so
  ":memory:" databases are shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/league.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  coord := storage.NewCoordinator(store, logger)

SEE ALSO:
  - storage/store.go: Interface definition
  - storage/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/league-engine/storage"
)

// Store implements storage.Durable using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		season INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	);

	-- Ordered season scans (retention sweeper, games by season)
	CREATE INDEX IF NOT EXISTS idx_records_collection_season
		ON records(collection, season, key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

// Get returns one record.
func (s *Store) Get(ctx context.Context, coll storage.Collection, key string) (storage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := storage.Record{Collection: coll, Key: key}
	err := s.db.QueryRowContext(ctx,
		"SELECT season, data FROM records WHERE collection = ? AND key = ?",
		string(coll), key,
	).Scan(&rec.Season, &rec.Data)

	if err == sql.ErrNoRows {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("failed to get %s[%s]: %w", coll, key, err)
	}
	return rec, true, nil
}

// List returns all records of a collection ordered by key.
func (s *Store) List(ctx context.Context, coll storage.Collection) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, season, data FROM records WHERE collection = ? ORDER BY key",
		string(coll),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", coll, err)
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		rec := storage.Record{Collection: coll}
		if err := rows.Scan(&rec.Key, &rec.Season, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SeasonKeys returns one page of keys from the season index.
func (s *Store) SeasonKeys(ctx context.Context, coll storage.Collection, maxSeason int, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM records
		WHERE collection = ? AND season <= ?
		ORDER BY season ASC, key ASC
		LIMIT ?
	`, string(coll), maxSeason, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan season index: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, coll storage.Collection) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE collection = ?", string(coll),
	).Scan(&n)
	return n, err
}

// =============================================================================
// WRITES
// =============================================================================

// Apply writes the batch in one SQL transaction.
func (s *Store) Apply(ctx context.Context, muts []storage.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, m := range muts {
		if err := applyMutation(ctx, sqlTx, m, now); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func applyMutation(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, m storage.Mutation, now string) error {
	rec := m.Record
	if rec.Key == "" {
		return fmt.Errorf("%s: empty key", rec.Collection)
	}

	if m.Op == storage.OpDelete {
		_, err := db.ExecContext(ctx,
			"DELETE FROM records WHERE collection = ? AND key = ?",
			string(rec.Collection), rec.Key,
		)
		if err != nil {
			return fmt.Errorf("failed to delete %s[%s]: %w", rec.Collection, rec.Key, err)
		}
		return nil
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO records (collection, key, season, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			season = excluded.season,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, string(rec.Collection), rec.Key, rec.Season, rec.Data, now)
	if err != nil {
		return fmt.Errorf("failed to put %s[%s]: %w", rec.Collection, rec.Key, err)
	}
	return nil
}

// Reset removes every record. Used by the dev reset endpoint.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM records")
	return err
}
