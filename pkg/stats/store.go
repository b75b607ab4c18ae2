package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Record is one persisted access record.
type Record struct {
	Timestamp  time.Time
	Method     string
	Path       string
	Status     int
	Upstream   string
	Target     string
	ClientAddr string
	DurationMs int64
	BytesSent  int64
}

// Store persists access records to SQLite for stats history that survives
// restarts. Writes go through a prepared statement; SQLite allows a single
// writer, so the connection pool is pinned to one connection.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once

	insertStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// NewStore opens (or creates) the store at the given path. The database
// runs in WAL mode for concurrent readers.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("stats store path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize stats schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare stats statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS access_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		upstream TEXT,
		target TEXT,
		client_addr TEXT,
		duration_ms INTEGER NOT NULL,
		bytes_sent INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_access_ts ON access_records(ts);
	CREATE INDEX IF NOT EXISTS idx_access_upstream ON access_records(upstream);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO access_records
			(ts, method, path, status, upstream, target, client_addr, duration_ms, bytes_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(`DELETE FROM access_records WHERE ts < ?`)
	if err != nil {
		return fmt.Errorf("prepare prune: %w", err)
	}
	return nil
}

// Insert persists one access record.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	_, err := s.insertStmt.ExecContext(ctx,
		rec.Timestamp.Unix(),
		rec.Method,
		rec.Path,
		rec.Status,
		rec.Upstream,
		rec.Target,
		rec.ClientAddr,
		rec.DurationMs,
		rec.BytesSent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access record: %w", err)
	}
	return nil
}

// CountSince returns the number of records at or after the cutoff.
func (s *Store) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_records WHERE ts >= ?`, cutoff.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count access records: %w", err)
	}
	return count, nil
}

// Prune deletes records older than the cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.pruneStmt.ExecContext(ctx, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune access records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Close closes the store. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.insertStmt != nil {
			s.insertStmt.Close()
		}
		if s.pruneStmt != nil {
			s.pruneStmt.Close()
		}
		err = s.db.Close()
	})
	return err
}
