// Package session keeps the conversation identifier that ties chat requests to one backend history.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/raphaelgruber/oskour/internal/storage"
)

// Provider hands out the current session id, persisting it in the store.
// Storage failures never surface: the provider falls back to an id kept in memory
// for the lifetime of the process.
type Provider struct {
	store  storage.Store
	logger *slog.Logger
	newID  func() string

	mu      sync.Mutex
	current string
}

// NewProvider creates a provider backed by store. A nil logger uses slog.Default().
func NewProvider(store storage.Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:  store,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// GetOrCreate returns the persisted session id, generating and persisting one on first use.
func (p *Provider) GetOrCreate(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != "" {
		return p.current
	}

	id, ok, err := p.store.Get(ctx, storage.KeySessionID)
	if err != nil {
		p.logger.Warn("session id unreadable, using in-memory id", "error", err)
	}
	if ok && id != "" {
		p.current = id
		return id
	}

	p.current = p.newID()
	p.persist(ctx, p.current)
	return p.current
}

// Reset replaces the session id with a fresh one and returns it.
func (p *Provider) Reset(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.current
	id := p.newID()
	for id == prev {
		id = p.newID()
	}
	p.current = id
	p.persist(ctx, id)
	p.logger.Debug("session reset", "previous", prev, "session_id", id)
	return id
}

// Current returns the id in use without touching storage. It is empty before the first GetOrCreate.
func (p *Provider) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// persist stores id; caller must hold p.mu.
func (p *Provider) persist(ctx context.Context, id string) {
	if err := p.store.Set(ctx, storage.KeySessionID, id); err != nil {
		p.logger.Warn("session id not persisted, using in-memory id", "error", err)
	}
}
