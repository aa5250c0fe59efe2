package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arkmail/dispatch/internal/pkg/logger"
)

// DefaultDomainPerMinute caps sends per recipient domain per minute when no
// explicit limit is configured.
const DefaultDomainPerMinute = 600

// Lua script for the per-domain token window. Runs GET, the limit check and
// INCR as one atomic unit so parallel workers cannot overshoot the window.
const throttleLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")

if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// Throttle enforces a per-recipient-domain send rate across every worker in
// the pool. Counters live in redis under minute-bucketed keys, so the window
// resets itself and crashed workers leak nothing.
type Throttle struct {
	redis  *redis.Client
	script *redis.Script
	limit  int
}

// NewThrottle wraps a connected redis client. perDomainPerMinute <= 0 falls
// back to DefaultDomainPerMinute.
func NewThrottle(client *redis.Client, perDomainPerMinute int) *Throttle {
	if perDomainPerMinute <= 0 {
		perDomainPerMinute = DefaultDomainPerMinute
	}
	return &Throttle{
		redis:  client,
		script: redis.NewScript(throttleLuaScript),
		limit:  perDomainPerMinute,
	}
}

// NewThrottleFromURL connects to redis and wraps the client.
func NewThrottleFromURL(redisURL string, perDomainPerMinute int) (*Throttle, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewThrottle(client, perDomainPerMinute), nil
}

// Allow reports whether one more send to the domain fits the current minute
// window, incrementing the window when it does. Redis errors fail open: a
// broken throttle must slow delivery down, not stop it.
func (t *Throttle) Allow(ctx context.Context, domain string) bool {
	now := time.Now()
	key := fmt.Sprintf("throttle:%s:%d", domain, now.Unix()/60)

	result, err := t.script.Run(ctx, t.redis,
		[]string{key},
		t.limit,
		120, // 2 minute TTL outlives the window it guards
	).Slice()
	if err != nil {
		logger.Warn("throttle check failed, allowing send", "domain", domain, "error", err.Error())
		return true
	}

	allowed, ok := result[0].(int64)
	if !ok {
		return true
	}
	return allowed == 1
}

// Usage returns the current minute window count for a domain.
func (t *Throttle) Usage(ctx context.Context, domain string) (int64, error) {
	key := fmt.Sprintf("throttle:%s:%d", domain, time.Now().Unix()/60)
	n, err := t.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("throttle usage: %w", err)
	}
	return n, nil
}
