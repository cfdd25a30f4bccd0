package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"hanziquest/core"
	"hanziquest/engine"
)

// ProgressCache keeps JSON snapshots of learner progress with a TTL. Each
// learner also has a generation counter that Invalidate advances; a snapshot
// is only written while the generation read before the store load is still
// current, so a slow reader cannot put back state older than a committed write.
type ProgressCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// generationTTL bounds the lifetime of idle counters.
const generationTTL = 24 * time.Hour

// fillScript sets KEYS[1] only when the counter at KEYS[2] still equals ARGV[1].
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func NewProgressCache(client *redis.Client, prefix string, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProgressCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ProgressCache) progressKey(learner core.LearnerID) string {
	return key(c.prefix, "progress", string(learner))
}

func (c *ProgressCache) generationKey(learner core.LearnerID) string {
	return key(c.prefix, "progress_gen", string(learner))
}

func (c *ProgressCache) Get(ctx context.Context, learner core.LearnerID) (core.LearnerProgress, bool, error) {
	data, err := c.client.Get(ctx, c.progressKey(learner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.LearnerProgress{}, false, nil
	}
	if err != nil {
		return core.LearnerProgress{}, false, fmt.Errorf("cache get: %w", err)
	}
	var p core.LearnerProgress
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry is a miss; drop it.
		_ = c.client.Del(ctx, c.progressKey(learner)).Err()
		return core.LearnerProgress{}, false, nil
	}
	return p, true, nil
}

func (c *ProgressCache) Generation(ctx context.Context, learner core.LearnerID) (uint64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(learner)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

func (c *ProgressCache) Fill(ctx context.Context, p core.LearnerProgress, gen uint64) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	keys := []string{c.progressKey(p.LearnerID), c.generationKey(p.LearnerID)}
	err = fillScript.Run(ctx, c.client, keys, strconv.FormatUint(gen, 10), data, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("cache fill: %w", err)
	}
	return nil
}

func (c *ProgressCache) Invalidate(ctx context.Context, learner core.LearnerID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.progressKey(learner))
		pipe.Incr(ctx, c.generationKey(learner))
		pipe.Expire(ctx, c.generationKey(learner), generationTTL)
		return nil
	})
	return err
}

var _ engine.ProgressCache = (*ProgressCache)(nil)
