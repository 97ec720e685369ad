package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite"
)

type Options struct {
	// DedupWindow is how long a client_request_id keeps mapping to the task it created.
	DedupWindow time.Duration
	Logger      logr.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Store is the server's task table in SQLite.
type Store struct {
	db     *sql.DB
	dedup  *Deduper
	window time.Duration
	log    logr.Logger
	now    func() time.Time

	// createMu serializes creates so two copies of one request cannot both miss the
	// dedup lookup.
	createMu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas for multi-process local usage.
	// WAL enables one writer + many readers; busy_timeout helps avoid "database is locked" flakiness.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:     db,
		dedup:  NewDeduper(opts.DedupWindow),
		window: opts.DedupWindow,
		log:    opts.Logger.WithName("store"),
		now:    opts.Now,
	}, nil
}

func (s *Store) Close() error {
	s.dedup.Close()
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			sort_order REAL NOT NULL,
			project_id TEXT,
			goal_id TEXT,
			json TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_order ON tasks(status, sort_order);`,
		`CREATE TABLE IF NOT EXISTS request_ids (
			client_request_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// PruneRequestIDs deletes idempotency records older than the dedup window and returns
// how many were removed.
func (s *Store) PruneRequestIDs(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.window).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_ids WHERE created_at_unixms < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.V(1).Info("pruned request ids", "count", n)
	}
	return n, nil
}
