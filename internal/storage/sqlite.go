package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const defaultPollInterval = 250 * time.Millisecond

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps values in a SQLite table. Changes committed by other processes
// are detected by polling PRAGMA data_version, which only moves for foreign commits.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	poll   time.Duration

	subs  subscribers
	known known

	mu      sync.Mutex
	version int64
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSQLiteStore opens the database at path, creates the schema and starts change polling.
// A pollInterval of zero uses the default.
func NewSQLiteStore(ctx context.Context, path string, pollInterval time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// data_version is per connection; one connection keeps own writes invisible to it.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite (%s): %w", stmt, err)
		}
	}

	s := &SQLiteStore{db: db, logger: logger, poll: pollInterval, done: make(chan struct{})}
	if s.version, err = s.dataVersion(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.scan(ctx, false); err != nil {
		_ = db.Close()
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.watch(pollCtx)
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	s.known.observe(key, value, true)
	s.subs.notify(key)
	return nil
}

func (s *SQLiteStore) Subscribe(fn func(key string)) func() {
	return s.subs.add(fn)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return s.db.Close()
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SQLiteStore) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("data_version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) watch(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := s.dataVersion(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("poll sqlite", "error", err)
				}
				continue
			}
			if v == s.version {
				continue
			}
			s.version = v
			if err := s.scan(ctx, true); err != nil && ctx.Err() == nil {
				s.logger.Warn("rescan sqlite", "error", err)
			}
		}
	}
}

// scan compares every row to the last values seen and optionally notifies changed keys.
func (s *SQLiteStore) scan(ctx context.Context, notify bool) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv")
	if err != nil {
		return fmt.Errorf("scan kv: %w", err)
	}
	defer rows.Close()

	var changed []string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if s.known.observe(key, value, true) {
			changed = append(changed, key)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan kv: %w", err)
	}

	if notify {
		for _, key := range changed {
			s.logger.Debug("external change", "key", key)
			s.subs.notify(key)
		}
	}
	return nil
}
