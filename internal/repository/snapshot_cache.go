package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/redis/go-redis/v9"
)

// ErrStaleSnapshot is returned by Set when a click was recorded for the link
// after the snapshot's generation was read
var ErrStaleSnapshot = errors.New("stats snapshot is stale")

// generationTTL keeps a link's generation counter well past any computation
const generationTTL = 24 * time.Hour

// SnapshotCache keeps computed stats responses per short ID in Redis.
// Each link has a generation counter that Invalidate bumps; Set only stores
// a snapshot computed under the current generation.
type SnapshotCache struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewSnapshotCache creates a snapshot cache. A nil client or a zero TTL
// turns every operation into a no-op.
func NewSnapshotCache(cache *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{cache: cache, ttl: ttl}
}

func snapshotKey(shortID string) string {
	return fmt.Sprintf("stats:%s", shortID)
}

func generationKey(shortID string) string {
	return fmt.Sprintf("stats-gen:%s", shortID)
}

func (c *SnapshotCache) enabled() bool {
	return c != nil && c.cache != nil && c.ttl > 0
}

// Get returns the cached response and the link's current generation.
// ok is false on a miss or Redis failure; gen is still usable for Set.
func (c *SnapshotCache) Get(ctx context.Context, shortID string) (*model.StatsResponse, int64, bool) {
	if !c.enabled() {
		return nil, 0, false
	}
	vals, err := c.cache.MGet(ctx, snapshotKey(shortID), generationKey(shortID)).Result()
	if err != nil || len(vals) != 2 {
		return nil, -1, false
	}

	var gen int64
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, -1, false
		}
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var resp model.StatsResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, gen, false
	}
	return &resp, gen, true
}

// Set stores resp if the link's generation still equals gen, otherwise it
// returns ErrStaleSnapshot and stores nothing.
func (c *SnapshotCache) Set(ctx context.Context, shortID string, resp *model.StatsResponse, gen int64) error {
	if !c.enabled() {
		return nil
	}
	if gen < 0 {
		return ErrStaleSnapshot
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	genKey := generationKey(shortID)
	err = c.cache.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return ErrStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, snapshotKey(shortID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleSnapshot
	}
	return err
}

// Invalidate drops the cached response and moves the link to a new generation
func (c *SnapshotCache) Invalidate(ctx context.Context, shortID string) error {
	if !c.enabled() {
		return nil
	}
	_, err := c.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(shortID))
		pipe.Expire(ctx, generationKey(shortID), generationTTL)
		pipe.Del(ctx, snapshotKey(shortID))
		return nil
	})
	return err
}
