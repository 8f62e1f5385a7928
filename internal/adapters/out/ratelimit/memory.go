// Package ratelimit provides token-bucket rate limiters keyed by client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"golang.org/x/time/rate"

	"github.com/bnema/ocistore/internal/boundaries/out"
)

var _ out.RateLimiter = (*MemoryStore)(nil)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore is an in-memory rate limiter using golang.org/x/time/rate.
// Each key gets its own limiter; idle keys are dropped by Sweep.
type MemoryStore struct {
	entries map[string]*memoryEntry
	mu      sync.Mutex
	rps     float64
	burst   int
	now     func() time.Time
	log     zerowrap.Logger
}

// NewMemoryStore creates a new in-memory rate limiter store.
func NewMemoryStore(rps float64, burst int, log zerowrap.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		rps:     rps,
		burst:   burst,
		now:     time.Now,
		log:     log,
	}
}

// Allow checks if a request identified by key is allowed.
func (s *MemoryStore) Allow(ctx context.Context, key string) bool {
	return s.AllowN(ctx, key, 1)
}

// AllowN checks if n requests identified by key are allowed.
func (s *MemoryStore) AllowN(_ context.Context, key string, n int) bool {
	now := s.now()
	return s.limiter(key, now).AllowN(now, n)
}

// Sweep drops limiters that have not been used for idle and returns how
// many were removed. A dropped key starts again with a full bucket.
func (s *MemoryStore) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}

	if removed > 0 {
		s.log.Debug().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "ratelimit").
			Int(zerowrap.FieldCount, removed).
			Msg("idle rate limiters evicted")
	}
	return removed
}

// Run sweeps idle limiters every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(idle)
		}
	}
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{limiter: rate.NewLimiter(rate.Limit(s.rps), s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}
