package ratelimiter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/ratelimiter/clock"
	"github.com/yourusername/ratelimiter/core"
)

// Store holds the buckets of every rate limit key. A key checked in both
// rate units owns one bucket per unit, so switching units never discards
// what a bucket has already consumed.
type Store interface {
	// GetBucket returns the bucket for key in the unit of limit,
	// creating it if needed.
	GetBucket(key string, limit LimitConfig) (*core.AtomicTokenBucket, error)

	// Lookup returns every bucket of key without creating one.
	Lookup(key string) []*core.AtomicTokenBucket

	// Delete removes the buckets of key.
	Delete(key string)

	// Cleanup removes idle buckets and returns how many were removed.
	Cleanup() (int, error)

	// Count returns the total number of buckets in the store.
	Count() int
}

// InMemoryStore implements Store with a map guarded by a RWMutex.
// The buckets themselves are lock-free, so the map lock is only held
// to find or create them.
type InMemoryStore struct {
	buckets    map[string]map[int64]*bucketEntry // key, then conversion factor
	mu         sync.RWMutex
	cleanupAge atomic.Int64 // nanoseconds; buckets idle longer than this are removed
	clock      clock.Clock
}

type bucketEntry struct {
	bucket       *core.AtomicTokenBucket
	lastAccessed atomic.Int64 // unix millis
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store. A cleanupAge of 0 disables cleanup.
// A nil clock reads the system clock.
func NewInMemoryStore(cleanupAge time.Duration, clk clock.Clock) *InMemoryStore {
	s := &InMemoryStore{
		buckets: make(map[string]map[int64]*bucketEntry),
		clock:   clock.Or(clk),
	}
	s.SetCleanupAge(cleanupAge)
	return s
}

// SetCleanupAge changes the idle age used by the next Cleanup.
func (s *InMemoryStore) SetCleanupAge(age time.Duration) {
	s.cleanupAge.Store(int64(age))
}

// CleanupAge returns the current idle age. 0 means cleanup is disabled.
func (s *InMemoryStore) CleanupAge() time.Duration {
	return time.Duration(s.cleanupAge.Load())
}

// GetBucket retrieves or creates the bucket for key in the unit of limit.
func (s *InMemoryStore) GetBucket(key string, limit LimitConfig) (*core.AtomicTokenBucket, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	conversion := limit.ConversionFactor()
	now := s.clock.NowMillis()

	s.mu.RLock()
	entry, exists := s.buckets[key][conversion]
	s.mu.RUnlock()

	if exists {
		entry.lastAccessed.Store(now)
		return entry.bucket, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have created it meanwhile.
	units := s.buckets[key]
	if entry, exists = units[conversion]; exists {
		entry.lastAccessed.Store(now)
		return entry.bucket, nil
	}
	if units == nil {
		units = make(map[int64]*bucketEntry, 1)
		s.buckets[key] = units
	}

	opts := limit.bucketOptions()
	opts.Clock = s.clock
	entry = &bucketEntry{bucket: core.NewAtomicTokenBucket(opts)}
	entry.lastAccessed.Store(now)
	units[conversion] = entry

	return entry.bucket, nil
}

// Lookup returns the buckets of key without creating one or touching their access time.
func (s *InMemoryStore) Lookup(key string) []*core.AtomicTokenBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units := s.buckets[key]
	if len(units) == 0 {
		return nil
	}
	buckets := make([]*core.AtomicTokenBucket, 0, len(units))
	for _, entry := range units {
		buckets = append(buckets, entry.bucket)
	}
	return buckets
}

// Delete removes the buckets of key.
func (s *InMemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}

// Clear removes all buckets.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]map[int64]*bucketEntry)
}

// Cleanup removes buckets that haven't been accessed within the cleanup age.
func (s *InMemoryStore) Cleanup() (int, error) {
	age := s.CleanupAge()
	if age == 0 {
		return 0, nil
	}

	cutoff := s.clock.NowMillis() - age.Milliseconds()
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, units := range s.buckets {
		for conversion, entry := range units {
			if entry.lastAccessed.Load() < cutoff {
				delete(units, conversion)
				removed++
			}
		}
		if len(units) == 0 {
			delete(s.buckets, key)
		}
	}
	return removed, nil
}

// Count returns the total number of buckets in the store.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, units := range s.buckets {
		n += len(units)
	}
	return n
}
