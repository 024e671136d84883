package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/marketd/internal/domain"
)

// AllocationStore implements domain.AllocationStore on Redis. Staged
// allocations are working state, not records: they live in a hash per
// (market, user) so a browser session can resume staging from any process,
// and they disappear with the deployment rather than the database.
//
// Key schema:
//
//	alloc:{marketID}:{userID} - hash, field per option index, JSON value
type AllocationStore struct {
	rdb *redis.Client
}

// NewAllocationStore creates an AllocationStore backed by the given Client.
func NewAllocationStore(c *Client) *AllocationStore {
	return &AllocationStore{rdb: c.Underlying()}
}

func allocKey(marketID, userID string) string {
	return "alloc:" + marketID + ":" + userID
}

// Get returns the staged allocation for one option, or domain.ErrNotFound.
func (as *AllocationStore) Get(ctx context.Context, marketID, userID string, optionIndex int) (domain.Allocation, error) {
	data, err := as.rdb.HGet(ctx, allocKey(marketID, userID), strconv.Itoa(optionIndex)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Allocation{}, domain.ErrNotFound
		}
		return domain.Allocation{}, fmt.Errorf("redis: get allocation %s/%s/%d: %w", marketID, userID, optionIndex, err)
	}

	var alloc domain.Allocation
	if err := json.Unmarshal(data, &alloc); err != nil {
		return domain.Allocation{}, fmt.Errorf("redis: unmarshal allocation %s/%s/%d: %w", marketID, userID, optionIndex, err)
	}
	return alloc, nil
}

// Put stores or replaces the staged allocation for its option.
func (as *AllocationStore) Put(ctx context.Context, alloc domain.Allocation) error {
	data, err := json.Marshal(alloc)
	if err != nil {
		return fmt.Errorf("redis: marshal allocation %s/%s/%d: %w", alloc.MarketID, alloc.UserID, alloc.OptionIndex, err)
	}
	key := allocKey(alloc.MarketID, alloc.UserID)
	if err := as.rdb.HSet(ctx, key, strconv.Itoa(alloc.OptionIndex), data).Err(); err != nil {
		return fmt.Errorf("redis: put allocation %s/%s/%d: %w", alloc.MarketID, alloc.UserID, alloc.OptionIndex, err)
	}
	return nil
}

// Delete removes the staged allocation for one option. Deleting an absent
// entry is not an error.
func (as *AllocationStore) Delete(ctx context.Context, marketID, userID string, optionIndex int) error {
	if err := as.rdb.HDel(ctx, allocKey(marketID, userID), strconv.Itoa(optionIndex)).Err(); err != nil {
		return fmt.Errorf("redis: delete allocation %s/%s/%d: %w", marketID, userID, optionIndex, err)
	}
	return nil
}

// ListByUser returns the user's staged allocations in a market, ordered by
// option index.
func (as *AllocationStore) ListByUser(ctx context.Context, marketID, userID string) ([]domain.Allocation, error) {
	fields, err := as.rdb.HGetAll(ctx, allocKey(marketID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list allocations %s/%s: %w", marketID, userID, err)
	}

	allocs := make([]domain.Allocation, 0, len(fields))
	for field, data := range fields {
		var alloc domain.Allocation
		if err := json.Unmarshal([]byte(data), &alloc); err != nil {
			return nil, fmt.Errorf("redis: unmarshal allocation %s/%s/%s: %w", marketID, userID, field, err)
		}
		allocs = append(allocs, alloc)
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].OptionIndex < allocs[j].OptionIndex })
	return allocs, nil
}

// Compile-time interface check.
var _ domain.AllocationStore = (*AllocationStore)(nil)
