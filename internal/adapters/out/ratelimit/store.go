package ratelimit

import (
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/ocistore/internal/boundaries/out"
)

// Config selects and sizes a rate limiter.
type Config struct {
	Backend string  // "memory" (default) or "starskey"
	Dir     string  // starskey database directory
	RPS     float64 // sustained requests per second
	Burst   int
}

// NewStore creates a RateLimiter based on the configured backend.
func NewStore(cfg Config, log zerowrap.Logger) (out.RateLimiter, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(cfg.RPS, cfg.Burst, log), nil
	case "starskey":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("starskey rate limit backend requires a directory")
		}
		return NewStarskeyStore(cfg.Dir, cfg.RPS, cfg.Burst, log)
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", cfg.Backend)
	}
}
