package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/starskey-io/starskey"

	"github.com/bnema/ocistore/internal/boundaries/out"
)

var _ out.RateLimiter = (*StarskeyStore)(nil)

// bucket is the persisted token-bucket state of one key.
type bucket struct {
	Tokens  float64   `json:"tokens"`
	Updated time.Time `json:"updated"`
}

// StarskeyStore is a token-bucket limiter persisted in a Starskey database,
// so limits survive restarts.
type StarskeyStore struct {
	db    *starskey.Starskey
	rps   float64
	burst int
	now   func() time.Time
	log   zerowrap.Logger
}

// NewStarskeyStore opens a Starskey-backed limiter in dir.
func NewStarskeyStore(dir string, rps float64, burst int, log zerowrap.Logger) (*StarskeyStore, error) {
	db, err := starskey.Open(&starskey.Config{
		Permission:        0750,
		Directory:         dir,
		FlushThreshold:    4 * 1024 * 1024,
		MaxLevel:          3,
		SizeFactor:        10,
		BloomFilter:       true,
		SuRF:              false,
		Logging:           false,
		Compression:       true,
		CompressionOption: starskey.SnappyCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open rate limit database: %w", err)
	}

	log.Info().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "ratelimit").
		Str(zerowrap.FieldPath, dir).
		Float64("rps", rps).
		Int("burst", burst).
		Msg("starskey rate limiter initialized")

	return &StarskeyStore{db: db, rps: rps, burst: burst, now: time.Now, log: log}, nil
}

// Allow checks if a request identified by key is allowed.
func (s *StarskeyStore) Allow(ctx context.Context, key string) bool {
	return s.AllowN(ctx, key, 1)
}

// AllowN checks if n requests identified by key are allowed. Storage
// failures fail open.
func (s *StarskeyStore) AllowN(_ context.Context, key string, n int) bool {
	allowed := false
	now := s.now()

	err := s.db.Update(func(txn *starskey.Txn) error {
		b := bucket{Tokens: float64(s.burst), Updated: now}

		value, err := txn.Get([]byte(key))
		if err == nil && value != nil {
			var stored bucket
			if json.Unmarshal(value, &stored) == nil {
				elapsed := now.Sub(stored.Updated).Seconds()
				b.Tokens = math.Min(float64(s.burst), stored.Tokens+math.Max(0, elapsed)*s.rps)
			}
		}

		if b.Tokens >= float64(n) {
			b.Tokens -= float64(n)
			allowed = true
		}

		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		txn.Put([]byte(key), data)
		return nil
	})
	if err != nil {
		s.log.Warn().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "ratelimit").
			Str("key", key).
			Err(err).
			Msg("rate limit state update failed, allowing request")
		return true
	}

	return allowed
}

// Close closes the underlying database.
func (s *StarskeyStore) Close() error {
	return s.db.Close()
}
