// Package history persists acquired usage records in SQLite so that status
// line invocations in separate processes can share results and the CLI can
// show how spend moved over the day.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// sqlite driver
	_ "modernc.org/sqlite"

	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// Store wraps the snapshot database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// Status line processes overlap; one writer connection avoids SQLITE_BUSY storms.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=3000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_key TEXT NOT NULL,
		source TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		token_count REAL NOT NULL DEFAULT 0,
		today_cost REAL NOT NULL DEFAULT 0,
		cost_limit REAL NOT NULL DEFAULT 0,
		cost_percentage REAL,
		api_key_name TEXT NOT NULL DEFAULT '',
		api_key_status TEXT NOT NULL DEFAULT '',
		expiry_date TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_source_time ON snapshots(source_key, fetched_at);
	`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// SourceKey identifies a source URL without storing its query string.
func SourceKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

// Save appends a snapshot of rec for sourceURL.
func (s *Store) Save(ctx context.Context, sourceURL string, rec types.UsageRecord) error {
	fetchedAt := rec.LastUpdate
	if fetchedAt.IsZero() {
		fetchedAt = s.now()
	}

	var pct sql.NullFloat64
	if rec.CostPercentage != nil {
		pct = sql.NullFloat64{Float64: *rec.CostPercentage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			source_key, source, fetched_at, request_count, token_count, today_cost,
			cost_limit, cost_percentage, api_key_name, api_key_status, expiry_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		SourceKey(sourceURL), logger.SafeURL(sourceURL), fetchedAt.UnixMilli(),
		rec.RequestCount, rec.TokenCount, rec.TodayCost, rec.CostLimit, pct,
		rec.APIKeyName, rec.APIKeyStatus, rec.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, source, fetched_at, request_count, token_count, today_cost,
	cost_limit, cost_percentage, api_key_name, api_key_status, expiry_date`

// Latest returns the most recent record saved for sourceURL.
func (s *Store) Latest(ctx context.Context, sourceURL string) (types.UsageRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE source_key = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1`, SourceKey(sourceURL))

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.UsageRecord{}, false, nil
	}
	if err != nil {
		return types.UsageRecord{}, false, err
	}
	return snap.Record, true, nil
}

// Recent returns snapshots for sourceURL fetched at or after since, oldest
// first. A non-positive limit returns all of them.
func (s *Store) Recent(ctx context.Context, sourceURL string, since time.Time, limit int) ([]types.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+snapshotColumns+`
			FROM snapshots
			WHERE source_key = ? AND fetched_at >= ?
			ORDER BY fetched_at DESC, id DESC
			LIMIT ?
		) ORDER BY fetched_at ASC, id ASC`,
		SourceKey(sourceURL), since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than before and reports how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE fetched_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (types.Snapshot, error) {
	var (
		snap      types.Snapshot
		fetchedAt int64
		pct       sql.NullFloat64
	)
	err := row.Scan(
		&snap.ID, &snap.Source, &fetchedAt,
		&snap.Record.RequestCount, &snap.Record.TokenCount, &snap.Record.TodayCost,
		&snap.Record.CostLimit, &pct,
		&snap.Record.APIKeyName, &snap.Record.APIKeyStatus, &snap.Record.ExpiryDate,
	)
	if err != nil {
		return types.Snapshot{}, err
	}
	snap.FetchedAt = time.UnixMilli(fetchedAt)
	snap.Record.LastUpdate = snap.FetchedAt
	if pct.Valid {
		v := pct.Float64
		snap.Record.CostPercentage = &v
	}
	return snap, nil
}
