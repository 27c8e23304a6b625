package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"collabnotes-server/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// NoteCache stores single notes by id. A miss is (nil, false, nil).
type NoteCache interface {
	Get(ctx context.Context, id string) (*domain.Note, bool, error)
	Set(ctx context.Context, note *domain.Note) error
	Delete(ctx context.Context, id string) error
}

type redisNoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisNoteCache(rdb *redis.Client, ttl time.Duration) NoteCache {
	return &redisNoteCache{rdb: rdb, ttl: ttl}
}

func noteCacheKey(id string) string {
	return "notes:note:" + id
}

// jitteredTTL spreads expiry so entries written together do not expire together.
func (c *redisNoteCache) jitteredTTL() time.Duration {
	jitter := c.ttl / 10
	if jitter <= 0 {
		return c.ttl
	}
	return c.ttl + time.Duration(rand.Int63n(int64(jitter)))
}

func (c *redisNoteCache) Get(ctx context.Context, id string) (*domain.Note, bool, error) {
	raw, err := c.rdb.Get(ctx, noteCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var note domain.Note
	if err := json.Unmarshal(raw, &note); err != nil {
		return nil, false, err
	}
	return &note, true, nil
}

func (c *redisNoteCache) Set(ctx context.Context, note *domain.Note) error {
	raw, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, noteCacheKey(note.ID), raw, c.jitteredTTL()).Err()
}

func (c *redisNoteCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, noteCacheKey(id)).Err()
}

// cachedNoteRepository is a read-through cache in front of another
// repository. Cache failures are logged and fall back to the store.
//
// Every write bumps generation. A fill whose store read started before the
// bump is not cached, so a slow reader can never put back a row that a
// concurrent Update or Delete already replaced.
type cachedNoteRepository struct {
	NoteRepository
	cache NoteCache
	group singleflight.Group

	mu         sync.Mutex
	generation uint64
}

func NewCachedNoteRepository(inner NoteRepository, cache NoteCache) NoteRepository {
	return &cachedNoteRepository{
		NoteRepository: inner,
		cache:          cache,
	}
}

func (r *cachedNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		note, hit, err := r.cache.Get(ctx, id)
		if err != nil {
			slog.Warn("note cache read failed", "noteId", id, "error", err)
		}
		if hit {
			return note, nil
		}

		gen := r.currentGeneration()
		note, err = r.NoteRepository.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, gen, note)
		return note, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers may mutate the result; hand each one its own copy.
	note := *v.(*domain.Note)
	return &note, nil
}

func (r *cachedNoteRepository) Update(ctx context.Context, note *domain.Note) error {
	if err := r.NoteRepository.Update(ctx, note); err != nil {
		return err
	}
	r.evict(ctx, note.ID)
	return nil
}

func (r *cachedNoteRepository) Delete(ctx context.Context, id string) error {
	if err := r.NoteRepository.Delete(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

func (r *cachedNoteRepository) currentGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// fill caches note unless a write happened since gen was read. mu is held
// across the Set so an evict cannot slip in between the check and the write.
func (r *cachedNoteRepository) fill(ctx context.Context, gen uint64, note *domain.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return
	}
	if err := r.cache.Set(ctx, note); err != nil {
		slog.Warn("note cache write failed", "noteId", note.ID, "error", err)
	}
}

func (r *cachedNoteRepository) evict(ctx context.Context, id string) {
	r.mu.Lock()
	r.generation++
	r.mu.Unlock()

	r.group.Forget(id)
	if err := r.cache.Delete(ctx, id); err != nil {
		slog.Warn("note cache evict failed", "noteId", id, "error", err)
	}
}
