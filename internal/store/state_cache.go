package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateCache mirrors the latest known state of each device into redis so the
// overview endpoint can answer without a table scan even while postgres is
// busy with a migration or backup.
type StateCache struct{ rdb *redis.Client }

func NewStateCache(rdb *redis.Client) *StateCache { return &StateCache{rdb: rdb} }

func cacheKey(id string) string { return "device:state:" + id }

type CachedState struct {
	Location  string    `json:"location"`
	LastState string    `json:"last_state"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *StateCache) Set(ctx context.Context, id string, st CachedState) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(id), b, 24*time.Hour).Err()
}

func (c *StateCache) Get(ctx context.Context, id string) (*CachedState, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	b, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st CachedState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *StateCache) Delete(ctx context.Context, id string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, cacheKey(id)).Err()
}
