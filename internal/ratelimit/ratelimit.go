// Package ratelimit implements a per-identity sliding-window message limiter
// backed by a Redis sorted set, so every worker handling sockets for the same
// user shares one window.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// Decision is the outcome of one Allow call. CooldownSeconds is only
// meaningful when Allowed is false and is always >= 1.
type Decision struct {
	Allowed         bool
	CooldownSeconds int
}

func New(rdb *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *Limiter) key(identity string) string {
	return fmt.Sprintf("%s:ratelimit:%s", l.prefix, identity)
}

// Allow records one send attempt for identity and reports whether it is
// within the window limit. The expire-old / record-new / count sequence runs
// inside a single MULTI/EXEC so concurrent senders on the same identity
// cannot both be admitted off a stale count. The attempt's timestamp is
// recorded even when the attempt is rejected; the key expires after two idle
// windows so abandoned identities do not accumulate.
func (l *Limiter) Allow(ctx context.Context, identity string) (Decision, error) {
	now := l.now()
	nowSec := float64(now.UnixNano()) / float64(time.Second)
	cutoff := nowSec - l.window.Seconds()
	key := l.key(identity)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
	pipe.ZAdd(ctx, key, redis.Z{Score: nowSec, Member: uuid.NewString()})
	count := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	if count.Val() <= int64(l.limit) {
		return Decision{Allowed: true}, nil
	}
	return Decision{CooldownSeconds: l.cooldown(oldest.Val(), nowSec)}, nil
}

// cooldown is the whole-second wait until the oldest surviving entry leaves
// the window, plus one so a limited caller is never told zero. An empty set
// here means the entries raced away between count and read; fall back to the
// full window.
func (l *Limiter) cooldown(oldest []redis.Z, nowSec float64) int {
	windowSec := l.window.Seconds()
	if len(oldest) == 0 {
		return int(windowSec)
	}
	c := int(oldest[0].Score+windowSec-nowSec) + 1
	if c < 1 {
		c = 1
	}
	return c
}
