package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"collabnotes-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	NoteRepository
	mu    sync.Mutex
	notes map[string]*domain.Note
	finds int
}

func (r *countingRepo) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	n, ok := r.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *countingRepo) Update(ctx context.Context, note *domain.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[note.ID]; !ok {
		return ErrNotFound
	}
	cp := *note
	r.notes[note.ID] = &cp
	return nil
}

func (r *countingRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[id]; !ok {
		return ErrNotFound
	}
	delete(r.notes, id)
	return nil
}

func (r *countingRepo) findCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.Note
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.Note)}
}

func (c *memCache) Get(ctx context.Context, id string) (*domain.Note, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	n, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	return &n, true, nil
}

func (c *memCache) Set(ctx context.Context, note *domain.Note) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[note.ID] = *note
	return nil
}

func (c *memCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *memCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func seededRepo() *countingRepo {
	now := time.Now()
	return &countingRepo{notes: map[string]*domain.Note{
		"n1": {ID: "n1", Title: "first", Content: "<p>a</p>", CreatedAt: now, Timestamp: now},
	}}
}

func TestCachedNoteRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner, cache := seededRepo(), newMemCache()
	repo := NewCachedNoteRepository(inner, cache)

	first, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Title)
	assert.True(t, cache.has("n1"))

	second, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first", second.Title)
	assert.Equal(t, 1, inner.findCalls(), "second read served from cache")

	second.Title = "mutated"
	third, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first", third.Title, "callers get independent copies")
}

func TestCachedNoteRepository_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner, cache := seededRepo(), newMemCache()
	repo := NewCachedNoteRepository(inner, cache)

	_, err := repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, cache.has("missing"))
}

func TestCachedNoteRepository_CacheErrorFallsBack(t *testing.T) {
	ctx := context.Background()
	inner, cache := seededRepo(), newMemCache()
	cache.getErr = errors.New("redis down")
	repo := NewCachedNoteRepository(inner, cache)

	note, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first", note.Title)
	assert.Equal(t, 1, inner.findCalls())
}

func TestCachedNoteRepository_WritesEvict(t *testing.T) {
	ctx := context.Background()
	inner, cache := seededRepo(), newMemCache()
	repo := NewCachedNoteRepository(inner, cache)

	note, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	require.True(t, cache.has("n1"))

	note.Title = "renamed"
	require.NoError(t, repo.Update(ctx, note))
	assert.False(t, cache.has("n1"))

	got, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, repo.Delete(ctx, "n1"))
	assert.False(t, cache.has("n1"))

	_, err = repo.FindByID(ctx, "n1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// gatedRepo pauses FindByID after the store read until resume is closed.
type gatedRepo struct {
	*countingRepo
	read   chan struct{}
	resume chan struct{}
}

func (g *gatedRepo) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	note, err := g.countingRepo.FindByID(ctx, id)
	if g.read != nil {
		g.read <- struct{}{}
		<-g.resume
	}
	return note, err
}

func TestCachedNoteRepository_SlowReadDoesNotCacheReplacedRow(t *testing.T) {
	ctx := context.Background()
	inner := &gatedRepo{
		countingRepo: seededRepo(),
		read:         make(chan struct{}),
		resume:       make(chan struct{}),
	}
	cache := newMemCache()
	repo := NewCachedNoteRepository(inner, cache)

	type result struct {
		note *domain.Note
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		n, err := repo.FindByID(ctx, "n1")
		slow <- result{n, err}
	}()

	select {
	case <-inner.read:
	case <-time.After(2 * time.Second):
		t.Fatal("read never reached the store")
	}

	saved := &domain.Note{ID: "n1", Title: "saved", Content: "<p>b</p>", Timestamp: time.Now()}
	require.NoError(t, repo.Update(ctx, saved))
	close(inner.resume)

	res := <-slow
	require.NoError(t, res.err)
	assert.Equal(t, "first", res.note.Title, "the in-flight read still sees its own row")
	assert.False(t, cache.has("n1"), "the replaced row must not be cached")

	inner.read = nil
	got, err := repo.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "saved", got.Title)
	assert.True(t, cache.has("n1"))
}
