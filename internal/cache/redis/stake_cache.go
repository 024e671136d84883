package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/marketd/internal/domain"
)

const stakeTTL = 5 * time.Minute

// StakeCache implements domain.StakeCache. The catalog mirrors every stake
// mutation here and the stake feed refreshes it, so readers in other
// processes see current stakes without touching the catalog.
//
// Key schema:
//
//	stakes:{marketID} - JSON array of per-option stakes
type StakeCache struct {
	rdb *redis.Client
}

// NewStakeCache creates a StakeCache backed by the given Client.
func NewStakeCache(c *Client) *StakeCache {
	return &StakeCache{rdb: c.Underlying()}
}

func stakeKey(marketID string) string { return "stakes:" + marketID }

// SetStakes stores the full stake vector for a market with a short TTL. A
// stale vector expiring is preferable to one lingering after the feed stops.
func (sc *StakeCache) SetStakes(ctx context.Context, marketID string, stakes []float64) error {
	data, err := json.Marshal(stakes)
	if err != nil {
		return fmt.Errorf("redis: marshal stakes %s: %w", marketID, err)
	}
	if err := sc.rdb.Set(ctx, stakeKey(marketID), data, stakeTTL).Err(); err != nil {
		return fmt.Errorf("redis: set stakes %s: %w", marketID, err)
	}
	return nil
}

// GetStakes returns the cached stake vector for a market.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (sc *StakeCache) GetStakes(ctx context.Context, marketID string) ([]float64, error) {
	data, err := sc.rdb.Get(ctx, stakeKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get stakes %s: %w", marketID, err)
	}

	var stakes []float64
	if err := json.Unmarshal(data, &stakes); err != nil {
		return nil, fmt.Errorf("redis: unmarshal stakes %s: %w", marketID, err)
	}
	return stakes, nil
}

// Compile-time interface check.
var _ domain.StakeCache = (*StakeCache)(nil)
