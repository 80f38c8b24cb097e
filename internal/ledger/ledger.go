// Package ledger keeps the snapshot history of tracked files in a SQLite database,
// so an application can tell whether a file changed since it last looked.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sculptor/internal/logging"
	"sculptor/internal/shasnap"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultFileName is the ledger database name inside an app's data dir.
const DefaultFileName = "snapshots.db"

// ErrNotFound is returned when a path has never been recorded.
var ErrNotFound = errors.New("no snapshot recorded")

// Entry is one recorded snapshot.
type Entry struct {
	ID         string
	Path       string
	Digest     string
	Size       int64
	RecordedAt time.Time
}

// Ledger is a SQLite-backed snapshot history.
type Ledger struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
	now    func() time.Time
}

// Open creates or opens the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite happy without busy-retry loops.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, dbPath: dbPath, now: time.Now}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Get(logging.CategoryLedger).Debug("opened ledger %s", dbPath)
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		path TEXT NOT NULL,
		digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_path ON snapshots(path, seq);
	`
	_, err := l.db.Exec(schema)
	return err
}

func normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// Record stores digest for path unless it equals the latest recorded digest.
// It returns the latest entry afterwards and whether a new one was written.
func (l *Ledger) Record(ctx context.Context, path, digest string, size int64) (Entry, bool, error) {
	if !shasnap.Valid(digest) {
		return Entry{}, false, fmt.Errorf("invalid snapshot digest %q", digest)
	}
	p, err := normalize(path)
	if err != nil {
		return Entry{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	latest, err := l.latest(ctx, p)
	switch {
	case err == nil && latest.Digest == digest:
		return latest, false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Entry{}, false, err
	}

	e := Entry{
		ID:         uuid.NewString(),
		Path:       p,
		Digest:     digest,
		Size:       size,
		RecordedAt: l.now().UTC().Truncate(time.Millisecond),
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, path, digest, size, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.Digest, e.Size, e.RecordedAt.UnixMilli())
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to record snapshot: %w", err)
	}

	logging.Get(logging.CategoryLedger).Info("recorded %s for %s", shasnap.Short(digest), p)
	return e, true, nil
}

// RecordFile snapshots the file at path and records it.
func (l *Ledger) RecordFile(ctx context.Context, path string) (Entry, bool, error) {
	digest, size, err := shasnap.SnapFile(path)
	if err != nil {
		return Entry{}, false, err
	}
	return l.Record(ctx, path, digest, size)
}

// Track records the file at path and, when a new entry was written and keep > 0,
// prunes its history to the newest keep entries.
func (l *Ledger) Track(ctx context.Context, path string, keep int) (Entry, bool, error) {
	e, changed, err := l.RecordFile(ctx, path)
	if err != nil || !changed || keep <= 0 {
		return e, changed, err
	}
	if _, err := l.Prune(ctx, path, keep); err != nil {
		return e, changed, err
	}
	return e, changed, nil
}

// Latest returns the newest entry for path.
func (l *Ledger) Latest(ctx context.Context, path string) (Entry, error) {
	p, err := normalize(path)
	if err != nil {
		return Entry{}, err
	}
	return l.latest(ctx, p)
}

func (l *Ledger) latest(ctx context.Context, p string) (Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, path, digest, size, recorded_at FROM snapshots WHERE path = ? ORDER BY seq DESC LIMIT 1`, p)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w for %s", ErrNotFound, p)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return e, nil
}

// History returns up to limit entries for path, newest first. limit <= 0 means all.
func (l *Ledger) History(ctx context.Context, path string, limit int) ([]Entry, error) {
	p, err := normalize(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, path, digest, size, recorded_at FROM snapshots WHERE path = ? ORDER BY seq DESC LIMIT ?`, p, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Paths lists every tracked path, sorted.
func (l *Ledger) Paths(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT path FROM snapshots ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Prune keeps only the newest keep entries for path and returns how many were deleted.
func (l *Ledger) Prune(ctx context.Context, path string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be >= 1, got %d", keep)
	}
	p, err := normalize(path)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE path = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE path = ? ORDER BY seq DESC LIMIT ?
		)`, p, p, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", p, err)
	}
	n, _ := res.RowsAffected()
	logging.Get(logging.CategoryLedger).Debug("pruned %d entries for %s", n, p)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var ms int64
	if err := s.Scan(&e.ID, &e.Path, &e.Digest, &e.Size, &ms); err != nil {
		return Entry{}, err
	}
	e.RecordedAt = time.UnixMilli(ms).UTC()
	return e, nil
}
