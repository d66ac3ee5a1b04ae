// Package ratelimit meters export requests with a Redis-backed token
// bucket. Each requested output step costs one token, so a job asking for
// five outputs draws five times the budget of a single-output job.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision reports a single Allow call: whether the cost fit the bucket,
// the tokens left afterwards, and how long the caller should wait before
// the full cost would fit again.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type RedisTokenBucket struct {
	client   redis.UniversalClient
	capacity int64
	refill   float64 // tokens per millisecond
	ttl      time.Duration
	prefix   string
	now      func() time.Time
	script   *redis.Script
}

// bucketScript refills by elapsed time, then tries to take the requested
// cost atomically. Returns {allowed, remaining, retry_after_ms}.
const bucketScript = `
local bucket = KEYS[1]
local cap = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call("HMGET", bucket, "tokens", "refilled_at")
local tokens = tonumber(state[1]) or cap
local refilled_at = tonumber(state[2]) or now

tokens = math.min(cap, tokens + math.max(0, now - refilled_at) * rate)

local ok = 0
local wait = 0
if cost <= tokens then
  tokens = tokens - cost
  ok = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HMSET", bucket, "tokens", tokens, "refilled_at", now)
redis.call("PEXPIRE", bucket, ttl)

return {ok, math.floor(tokens), wait}
`

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, prefix string) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if capacity <= 0 || window <= 0 {
		return nil, fmt.Errorf("capacity and window must be positive")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "stackistry:exports"
	}

	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	return &RedisTokenBucket{
		client:   client,
		capacity: int64(capacity),
		refill:   float64(capacity) / float64(windowMS),
		ttl:      2 * window,
		prefix:   prefix,
		now:      time.Now,
		script:   redis.NewScript(bucketScript),
	}, nil
}

// Allow charges cost tokens against the subject's bucket. Cost is clamped
// to [1, capacity] so a single oversized job can never be starved forever:
// at full capacity it drains the bucket instead of being unpayable.
func (l *RedisTokenBucket) Allow(ctx context.Context, subject string, cost int64) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	if cost < 1 {
		cost = 1
	}
	if cost > l.capacity {
		cost = l.capacity
	}

	raw, err := l.script.Run(
		ctx,
		l.client,
		[]string{l.prefix + ":" + subject},
		l.capacity,
		l.refill,
		l.now().UTC().UnixMilli(),
		cost,
		l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run bucket script: %w", err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return Decision{}, fmt.Errorf("unexpected bucket script reply %T", raw)
	}

	var fields [3]int64
	for i, v := range reply {
		n, err := replyInt64(v)
		if err != nil {
			return Decision{}, fmt.Errorf("bucket script field %d: %w", i, err)
		}
		fields[i] = n
	}

	return Decision{
		Allowed:    fields[0] == 1,
		Remaining:  fields[1],
		RetryAfter: time.Duration(fields[2]) * time.Millisecond,
	}, nil
}

func replyInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported reply type %T", in)
	}
}
