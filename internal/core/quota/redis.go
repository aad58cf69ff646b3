package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrementBelow returns the new count, or -1 when the limit was already reached.
// Keys expire two days after their first increment.
var incrementBelow = goredis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return -1
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return n
`)

// RedisCounter keeps counters in Redis under "usage:<user>:<day>".
type RedisCounter struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

var _ Counter = (*RedisCounter)(nil)

func NewRedisCounter(rdb goredis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb, ttl: 48 * time.Hour}
}

// DialRedis connects and pings the server at addr.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func usageKey(userID, day string) string {
	return "usage:" + userID + ":" + day
}

func (c *RedisCounter) IncrementIfBelow(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}
	n, err := incrementBelow.Run(ctx, c.rdb, []string{usageKey(userID, day)}, limit, int(c.ttl.Seconds())).Int()
	if err != nil {
		return 0, false, fmt.Errorf("redis increment: %w", err)
	}
	if n < 0 {
		return limit, false, nil
	}
	return n, true, nil
}

func (c *RedisCounter) Current(ctx context.Context, userID, day string) (int, error) {
	n, err := c.rdb.Get(ctx, usageKey(userID, day)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}
