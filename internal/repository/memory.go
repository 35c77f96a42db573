package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type expiringValue struct {
	value     string
	count     int
	expiresAt time.Time
}

func (e expiringValue) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStateRepository is the single-process counterpart of
// RedisStateRepository.
type MemoryStateRepository struct {
	mu         sync.Mutex
	rateLimits map[string]expiringValue
	locks      map[string]expiringValue
	cache      map[string]expiringValue
	now        func() time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		rateLimits: make(map[string]expiringValue),
		locks:      make(map[string]expiringValue),
		cache:      make(map[string]expiringValue),
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || entry.expired(now) {
		entry = expiringValue{count: 1, expiresAt: now.Add(window)}
	} else {
		entry.count++
	}

	r.rateLimits[key] = entry
	return entry.count <= limit, nil
}

func (r *MemoryStateRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.locks[key]; ok && !held.expired(now) {
		return "", false, nil
	}
	token := uuid.NewString()
	r.locks[key] = expiringValue{value: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (r *MemoryStateRepository) ReleaseLock(ctx context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.locks[key]; ok && held.value == token {
		delete(r.locks, key)
	}
	return nil
}

func (r *MemoryStateRepository) GetCached(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[key]
	if !ok {
		return "", false, nil
	}
	if entry.expired(r.now()) {
		delete(r.cache, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (r *MemoryStateRepository) SetCached(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := expiringValue{value: value}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.cache[key] = entry
	return nil
}

func (r *MemoryStateRepository) DeleteCached(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cache, key)
	return nil
}
