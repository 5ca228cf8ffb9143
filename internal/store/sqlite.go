package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// InterruptedMessage is stored on tasks that were queued or running when a
// previous gateway process stopped.
const InterruptedMessage = "task interrupted by a gateway restart"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS task_results (
	handle       TEXT PRIMARY KEY,
	adapter      TEXT NOT NULL,
	queue        TEXT NOT NULL,
	priority     INTEGER NOT NULL,
	state        TEXT NOT NULL,
	result       BLOB,
	error        TEXT NOT NULL DEFAULT '',
	status_code  INTEGER NOT NULL DEFAULT 0,
	submitted_at INTEGER NOT NULL,
	started_at   INTEGER,
	completed_at INTEGER,
	expires_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_results_expires_at ON task_results(expires_at);
`

// SQLiteStore keeps records in a SQLite database so results survive a
// gateway restart within the retention window. Task queues live in memory,
// so records left queued or running by a previous process are marked
// failed on open; one database belongs to one gateway process.
type SQLiteStore struct {
	db       *sql.DB
	ttl      time.Duration
	now      func() time.Time
	logger   *monitoring.Logger
	mu       sync.Mutex
	stopChan chan struct{}
	stopped  bool
}

// NewSQLiteStore opens (or creates) the database at path and fails the
// records of unfinished tasks.
func NewSQLiteStore(path string, ttl time.Duration, logger *monitoring.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = monitoring.Nop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store '%s': %w", path, err)
	}
	// One writer keeps ":memory:" databases coherent and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Component("store"),
		stopChan: make(chan struct{}),
	}

	n, err := s.failInterrupted(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to recover sqlite store: %w", err)
	}
	if n > 0 {
		s.logger.Warn().Int64("tasks", n).Str("path", path).Msg("marked interrupted tasks failed")
	}

	go s.cleanup()
	return s, nil
}

// TTL returns the retention window.
func (s *SQLiteStore) TTL() time.Duration {
	return s.ttl
}

// Put upserts rec with a fresh expiry.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_results
	(handle, adapter, queue, priority, state, result, error, status_code, submitted_at, started_at, completed_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(handle) DO UPDATE SET
	adapter = excluded.adapter,
	queue = excluded.queue,
	priority = excluded.priority,
	state = excluded.state,
	result = excluded.result,
	error = excluded.error,
	status_code = excluded.status_code,
	submitted_at = excluded.submitted_at,
	started_at = excluded.started_at,
	completed_at = excluded.completed_at,
	expires_at = excluded.expires_at`,
		rec.Handle, rec.Adapter, rec.Queue, rec.Priority, string(rec.State),
		[]byte(rec.Result), rec.Error, rec.StatusCode,
		rec.SubmittedAt.UnixNano(), nullTime(rec.StartedAt), nullTime(rec.CompletedAt),
		now.Add(s.ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store task %s: %w", rec.Handle, err)
	}
	return nil
}

// Get returns the record unless it is missing or past its expiry.
func (s *SQLiteStore) Get(ctx context.Context, handle string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT handle, adapter, queue, priority, state, result, error, status_code, submitted_at, started_at, completed_at
FROM task_results WHERE handle = ? AND expires_at > ?`, handle, s.now().UnixNano())

	var (
		rec         Record
		state       string
		result      []byte
		submittedAt int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)
	err := row.Scan(&rec.Handle, &rec.Adapter, &rec.Queue, &rec.Priority, &state, &result,
		&rec.Error, &rec.StatusCode, &submittedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load task %s: %w", handle, err)
	}

	rec.State = State(state)
	if len(result) > 0 {
		rec.Result = result
	}
	rec.SubmittedAt = time.Unix(0, submittedAt)
	rec.StartedAt = fromNullTime(startedAt)
	rec.CompletedAt = fromNullTime(completedAt)
	return rec, true, nil
}

// Close stops the cleanup goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.stopChan)
	return s.db.Close()
}

// failInterrupted marks every live, non-terminal record failed with
// status 500. No worker will pick these tasks up again.
func (s *SQLiteStore) failInterrupted(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
UPDATE task_results
SET state = ?, status_code = ?, error = ?, completed_at = ?, expires_at = ?
WHERE state NOT IN (?, ?) AND expires_at > ?`,
		string(StateFailed), http.StatusInternalServerError, InterruptedMessage,
		now.UnixNano(), now.Add(s.ttl).UnixNano(),
		string(StateSucceeded), string(StateFailed), now.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// purgeExpired deletes rows past their expiry.
func (s *SQLiteStore) purgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_results WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// cleanup periodically removes expired rows. Get already hides them;
// this only bounds the file size.
func (s *SQLiteStore) cleanup() {
	interval := s.ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			n, err := s.purgeExpired(context.Background())
			if err != nil {
				s.logger.Warn().Err(err).Msg("sqlite store cleanup failed")
				continue
			}
			if n > 0 {
				s.logger.Debug().Int64("purged", n).Msg("sqlite store cleanup")
			}
		}
	}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
