package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is the backing key/value layer for cached computations.
// Implementations must be safe for arbitrary concurrent use. Values are
// opaque byte slices; serialization belongs to the caller.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// MemoryStore keeps cached values in-process. This is the default backend;
// nothing survives a restart, which matches the cache contract.
type MemoryStore struct {
	inner *gocache.Cache
}

func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		inner: gocache.New(defaultTTL, cleanupInterval),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found := s.inner.Get(key)
	if !found {
		return nil, false, nil
	}
	return value.([]byte), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.inner.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.inner.Delete(key)
	return nil
}

func (s *MemoryStore) Flush(ctx context.Context) error {
	s.inner.Flush()
	return nil
}
