package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteJournal implements Journal using SQLite for persistence. It is
// suitable for single-instance deployments where selection history must
// survive restarts.
//
// The database runs in WAL mode with a busy timeout so the health sweep
// and concurrent selection paths can write without lock errors.
type SQLiteJournal struct {
	db        *sql.DB
	dbPath    string
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	appendStmt *sql.Stmt
	recentStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// SQLiteConfig configures the SQLite journal.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS selection_journal (
	id         TEXT PRIMARY KEY,
	proxy_id   TEXT NOT NULL,
	region     TEXT NOT NULL,
	success    INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_region_ts ON selection_journal(region, ts DESC);
CREATE INDEX IF NOT EXISTS idx_journal_ts ON selection_journal(ts);
`

// NewSQLiteJournal opens (creating if necessary) a SQLite-backed journal.
func NewSQLiteJournal(cfg SQLiteConfig) (*SQLiteJournal, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite journal requires a database path")
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		cfg.DBPath, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	j := &SQLiteJournal{db: db, dbPath: cfg.DBPath}
	if err := j.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) prepareStatements() error {
	var err error

	j.appendStmt, err = j.db.Prepare(
		`INSERT INTO selection_journal (id, proxy_id, region, success, latency_ms, ts) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare append statement: %w", err)
	}

	j.recentStmt, err = j.db.Prepare(
		`SELECT id, proxy_id, region, success, latency_ms, ts FROM selection_journal WHERE region = ? ORDER BY ts DESC LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent statement: %w", err)
	}

	j.pruneStmt, err = j.db.Prepare(
		`DELETE FROM selection_journal WHERE ts < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	return nil
}

// Append stores one record.
func (j *SQLiteJournal) Append(ctx context.Context, rec Record) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrClosed
	}

	success := 0
	if rec.Success {
		success = 1
	}

	_, err := j.appendStmt.ExecContext(ctx,
		rec.ID, rec.ProxyID, rec.Region, success, rec.LatencyMs, rec.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append journal record: %w", err)
	}
	return nil
}

// RecentByRegion returns up to limit most-recent records for a region,
// newest first.
func (j *SQLiteJournal) RecentByRegion(ctx context.Context, region string, limit int) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.recentStmt.QueryContext(ctx, region, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			success int
			tsMilli int64
		)
		if err := rows.Scan(&rec.ID, &rec.ProxyID, &rec.Region, &success, &rec.LatencyMs, &tsMilli); err != nil {
			return nil, fmt.Errorf("failed to scan journal record: %w", err)
		}
		rec.Success = success != 0
		rec.Timestamp = time.UnixMilli(tsMilli)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune removes records older than the cutoff.
func (j *SQLiteJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return 0, ErrClosed
	}

	res, err := j.pruneStmt.ExecContext(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the prepared statements and the database.
func (j *SQLiteJournal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		j.mu.Unlock()

		for _, stmt := range []*sql.Stmt{j.appendStmt, j.recentStmt, j.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = j.db.Close()
	})
	return err
}
