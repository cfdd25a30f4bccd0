package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hanziquest/core"
	"hanziquest/leaderboard"
)

// Leaderboard is a leaderboard.Board on a Redis sorted set. Learners with equal
// totals are ordered by Redis (reverse lexicographic member order).
type Leaderboard struct {
	client *redis.Client
	key    string
}

func NewLeaderboard(client *redis.Client, prefix string) *Leaderboard {
	return &Leaderboard{client: client, key: key(prefix, "leaderboard", "xp")}
}

// Record only raises a learner's score (ZADD GT).
func (l *Leaderboard) Record(ctx context.Context, learner core.LearnerID, totalXP int64) error {
	err := l.client.ZAddGT(ctx, l.key, redis.Z{Score: float64(totalXP), Member: string(learner)}).Err()
	if err != nil {
		return fmt.Errorf("leaderboard record: %w", err)
	}
	return nil
}

func (l *Leaderboard) Remove(ctx context.Context, learner core.LearnerID) error {
	return l.client.ZRem(ctx, l.key, string(learner)).Err()
}

func (l *Leaderboard) Top(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := l.client.ZRevRangeWithScores(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard top: %w", err)
	}
	out := make([]leaderboard.Entry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, leaderboard.Entry{Learner: core.LearnerID(member), TotalXP: int64(z.Score), Rank: i + 1})
	}
	return out, nil
}

func (l *Leaderboard) Get(ctx context.Context, learner core.LearnerID) (leaderboard.Entry, bool, error) {
	score, err := l.client.ZScore(ctx, l.key, string(learner)).Result()
	if errors.Is(err, redis.Nil) {
		return leaderboard.Entry{}, false, nil
	}
	if err != nil {
		return leaderboard.Entry{}, false, fmt.Errorf("leaderboard score: %w", err)
	}
	rank, err := l.client.ZRevRank(ctx, l.key, string(learner)).Result()
	if errors.Is(err, redis.Nil) {
		return leaderboard.Entry{}, false, nil
	}
	if err != nil {
		return leaderboard.Entry{}, false, fmt.Errorf("leaderboard rank: %w", err)
	}
	return leaderboard.Entry{Learner: learner, TotalXP: int64(score), Rank: int(rank) + 1}, true, nil
}

var _ leaderboard.Board = (*Leaderboard)(nil)
