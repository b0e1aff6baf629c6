// Package cache implements the in-memory TTL store shared by the platform
// clients. Expiry is evaluated lazily at read time: a stale entry stops being
// returned but stays resident until overwritten or explicitly removed. There
// is no background eviction and no size bound.
package cache

import (
	"sync"
	"time"

	"github.com/onnwee/streampoll/telemetry"
)

// DefaultTTL is applied when a store is constructed with a non-positive TTL.
const DefaultTTL = 300 * time.Second

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Store is a TTL-gated map from string keys to values of type V. Keys are
// expected to be case-normalized (lower-cased) by the caller. The zero value
// is not usable; construct with New.
type Store[V any] struct {
	mu        sync.RWMutex
	entries   map[string]entry[V]
	ttl       time.Duration
	partition string

	// now is swappable for tests.
	now func() time.Time
}

// New creates a store with the given TTL. The partition name is used only to
// label cache metrics. A ttl <= 0 falls back to DefaultTTL.
func New[V any](partition string, ttl time.Duration) *Store[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[V]{
		entries:   make(map[string]entry[V]),
		ttl:       ttl,
		partition: partition,
		now:       time.Now,
	}
}

// Get returns the stored value when the entry exists and is younger than the
// TTL. A stale entry is a miss but is not removed.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	now := s.now
	s.mu.RUnlock()
	if ok && now().Sub(e.insertedAt) < s.ttl {
		telemetry.CountCacheHit(s.partition)
		return e.value, true
	}
	telemetry.CountCacheMiss(s.partition)
	var zero V
	return zero, false
}

// Set stores the value under key, replacing any previous entry wholesale and
// resetting its timestamp.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, insertedAt: s.now()}
	s.mu.Unlock()
}

// Delete removes the entry for key, if any.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Clear empties the store.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]entry[V])
	s.mu.Unlock()
}

// Len reports the number of resident entries, stale ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// setClock overrides the time source in tests.
func (s *Store[V]) setClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
