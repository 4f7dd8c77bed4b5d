package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces bursts of filesystem events for one key.
const defaultDebounce = 50 * time.Millisecond

// FileStore keeps one file per key in a directory. Writes are atomic (temp file + rename)
// and changes made by other processes are picked up through fsnotify.
type FileStore struct {
	dir      string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	subs  subscribers
	known known

	mu      sync.Mutex
	pending map[string]time.Time
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileStore opens (creating if needed) a store rooted at dir and starts watching it.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := &FileStore{
		dir:      dir,
		logger:   logger,
		watcher:  watcher,
		debounce: defaultDebounce,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}

	store.wg.Add(2)
	go store.processEvents()
	go store.processPending()
	return store, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}

	s.known.observe(key, value, true)
	s.subs.notify(key)
	return nil
}

func (s *FileStore) Subscribe(fn func(key string)) func() {
	return s.subs.add(fn)
}

// Close stops the watcher. It is safe to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

// processEvents queues changed keys for debounced delivery.
func (s *FileStore) processEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			key := filepath.Base(event.Name)
			if strings.HasPrefix(key, ".") || validateKey(key) != nil {
				continue
			}
			s.mu.Lock()
			s.pending[key] = time.Now()
			s.mu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("state dir watch error", "dir", s.dir, "error", err)
		}
	}
}

// processPending re-reads keys whose events have settled and notifies on real changes.
func (s *FileStore) processPending() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			var ready []string
			s.mu.Lock()
			for key, at := range s.pending {
				if now.Sub(at) >= s.debounce {
					ready = append(ready, key)
					delete(s.pending, key)
				}
			}
			s.mu.Unlock()

			for _, key := range ready {
				value, ok, err := s.Get(s.ctx, key)
				if err != nil {
					s.logger.Warn("reread changed key", "key", key, "error", err)
					continue
				}
				if s.known.observe(key, value, ok) {
					s.logger.Debug("external change", "key", key)
					s.subs.notify(key)
				}
			}
		}
	}
}
