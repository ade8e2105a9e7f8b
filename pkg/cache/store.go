// Package cache keeps recent question translations so repeated questions
// skip the translator round trip.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a string key/value store with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisStore wraps go-redis.
type RedisStore struct{ client *redis.Client }

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	res, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return res, err
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MemoryStore is an in-process TTL store holding at most maxEntries
// entries; when full, the entry closest to expiry is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]memItem
	maxEntries int
	now        func() time.Time
}

type memItem struct {
	value     string
	expiresAt time.Time
}

// DefaultMemoryEntries bounds a MemoryStore created with maxEntries <= 0.
const DefaultMemoryEntries = 1024

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	return &MemoryStore{items: map[string]memItem{}, maxEntries: maxEntries, now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return "", ErrMiss
	}
	if !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return "", ErrMiss
	}
	return item.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxEntries {
		m.cleanupLocked()
		if len(m.items) >= m.maxEntries {
			m.evictLocked()
		}
	}
	m.items[key] = memItem{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) cleanupLocked() {
	now := m.now()
	for k, v := range m.items {
		if !now.Before(v.expiresAt) {
			delete(m.items, k)
		}
	}
}

func (m *MemoryStore) evictLocked() {
	var oldestKey string
	var oldest time.Time
	for k, v := range m.items {
		if oldestKey == "" || v.expiresAt.Before(oldest) {
			oldestKey, oldest = k, v.expiresAt
		}
	}
	delete(m.items, oldestKey)
}

// NewStore uses client when it answers a ping and falls back to memory
// otherwise.
func NewStore(ctx context.Context, client *redis.Client) Store {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return NewRedisStore(client)
		}
	}
	return NewMemoryStore(DefaultMemoryEntries)
}
