package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/oskour/internal/storage"
)

func TestGetOrCreatePersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	p := NewProvider(store, nil)
	id := p.GetOrCreate(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, p.GetOrCreate(ctx), "stable across calls")

	stored, ok, err := store.Get(ctx, storage.KeySessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, stored)

	// A second provider (another view) reads the same id.
	other := NewProvider(store, nil)
	assert.Equal(t, id, other.GetOrCreate(ctx))
}

func TestResetReturnsNewID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewProvider(store, nil)

	first := p.GetOrCreate(ctx)
	second := p.Reset(ctx)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, p.GetOrCreate(ctx))
	assert.Equal(t, second, p.Current())

	stored, _, err := store.Get(ctx, storage.KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestResetNeverRepeats(t *testing.T) {
	p := NewProvider(storage.NewMemoryStore(), nil)
	ids := []string{"a", "a", "a", "b"}
	p.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	ctx := context.Background()
	assert.Equal(t, "a", p.GetOrCreate(ctx))
	assert.Equal(t, "b", p.Reset(ctx), "colliding ids are regenerated")
}

func TestStorageFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.FailWrites = errors.New("quota exceeded")

	p := NewProvider(store, nil)
	id := p.GetOrCreate(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, p.GetOrCreate(ctx))

	next := p.Reset(ctx)
	assert.NotEqual(t, id, next)
	assert.Equal(t, next, p.GetOrCreate(ctx))
}

func TestUnreadableStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Close())

	p := NewProvider(store, nil)
	id := p.GetOrCreate(ctx)
	assert.NotEmpty(t, id)
}
