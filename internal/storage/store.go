// Package storage provides the key-value store holding client state shared by every
// open oskour view, with change notifications across processes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// Well-known keys.
const (
	KeySessionID = "session_id"
	KeyIncidents = "incidents"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidKey is returned for keys outside [A-Za-z0-9_-].
	ErrInvalidKey = errors.New("invalid key")
)

// Store is a string key-value store with change notifications.
//
// Set persists the value and then notifies subscribers. Subscribers are also notified
// when another process sharing the same backing store changes a key.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Subscribe(fn func(key string)) (unsubscribe func())
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// subscribers is the in-process fan-out shared by all Store implementations.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(string)
}

func (s *subscribers) add(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(string))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// notify calls every subscriber without holding the lock, so callbacks may
// read from or write to the store.
func (s *subscribers) notify(key string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// known tracks the last value seen per key, so a change observed through a
// backend watch is reported once even when this process wrote it.
type known struct {
	mu     sync.Mutex
	values map[string]string
}

// observe records value for key and reports whether it differs from the last one seen.
func (k *known) observe(key, value string, ok bool) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.values == nil {
		k.values = make(map[string]string)
	}

	prev, had := k.values[key]
	if !ok {
		if !had {
			return false
		}
		delete(k.values, key)
		return true
	}
	k.values[key] = value
	return !had || prev != value
}
