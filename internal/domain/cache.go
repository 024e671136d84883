package domain

import (
	"context"
	"time"
)

// StakeCache provides fast access to the latest per-option stakes of a
// market, kept warm by the stake feed.
type StakeCache interface {
	SetStakes(ctx context.Context, marketID string, stakes []float64) error
	// GetStakes returns the cached stakes, or ErrNotFound.
	GetStakes(ctx context.Context, marketID string) ([]float64, error)
}

// LockManager provides distributed locking, used to serialize commits for a
// (market, user) pair across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter limits request rates per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted and, if so,
	// counts it against the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
