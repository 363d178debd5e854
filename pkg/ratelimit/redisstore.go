package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// getOrCreateAndConsumeScript implements the atomic refill-then-consume
// operation server-side: a Redis hash per key holding {tokens,
// lastRefillMs, contentLength}, refilled on read per the §3 invariant
// before the conditional decrement. KEYS[1] = bucket key.
// ARGV: capacity, refillRate, nowMs, ttlSec, needed, contentLength(0=unset)
var getOrCreateAndConsumeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local needed = tonumber(ARGV[5])
local contentLength = tonumber(ARGV[6])

local tokens = capacity
local lastRefill = now
local existing = redis.call('HMGET', key, 'tokens', 'lastRefill', 'contentLength')
if existing[1] then
  tokens = tonumber(existing[1])
  lastRefill = tonumber(existing[2])
end
local storedContentLength = 0
if existing[3] then
  storedContentLength = tonumber(existing[3])
end

local elapsedSec = math.max(0, (now - lastRefill) / 1000)
tokens = math.min(capacity, tokens + rate * elapsedSec)

local consumed = 0
local success = 0
if tokens >= needed then
  tokens = tokens - needed
  consumed = needed
  success = 1
end

if contentLength > 0 then
  storedContentLength = contentLength
end

redis.call('HMSET', key, 'tokens', tokens, 'lastRefill', now, 'contentLength', storedContentLength, 'capacity', capacity, 'refillRate', rate)
redis.call('EXPIRE', key, ttl)

return {tostring(tokens), tostring(consumed), tostring(success), tostring(storedContentLength)}
`)

// consumeTokensScript applies a signed delta, creating the bucket full if
// absent, clamped to [0, capacity]. ARGV: capacity, refillRate, nowMs,
// ttlSec, delta, contentLength(0=unset)
var consumeTokensScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local delta = tonumber(ARGV[5])
local contentLength = tonumber(ARGV[6])

local tokens = capacity
local lastRefill = now
local existing = redis.call('HMGET', key, 'tokens', 'lastRefill', 'contentLength')
local storedContentLength = 0
if existing[1] then
  tokens = tonumber(existing[1])
  lastRefill = tonumber(existing[2])
  if existing[3] then storedContentLength = tonumber(existing[3]) end
end

local elapsedSec = math.max(0, (now - lastRefill) / 1000)
tokens = math.min(capacity, tokens + rate * elapsedSec)
tokens = math.max(0, math.min(capacity, tokens - delta))

if contentLength > 0 then
  storedContentLength = contentLength
end

redis.call('HMSET', key, 'tokens', tokens, 'lastRefill', now, 'contentLength', storedContentLength, 'capacity', capacity, 'refillRate', rate)
redis.call('EXPIRE', key, ttl)

return tostring(tokens)
`)

// RedisStore backs the §4.J Store protocol with a shared go-redis
// client, so buckets are consistent across gateway instances. Each
// operation is a single EVAL round trip: read-refill-consume happens
// entirely inside the Lua script, which Redis executes atomically.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps an existing go-redis client or cluster client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func ttlSeconds(class BucketClass) int64 {
	if class.TTL <= 0 {
		return 3600
	}
	return int64(class.TTL.Seconds())
}

func (s *RedisStore) GetOrCreateAndConsume(ctx context.Context, key string, class BucketClass, needed int, contentLength int64) (Bucket, int, bool, error) {
	res, err := getOrCreateAndConsumeScript.Run(ctx, s.client, []string{key},
		class.Capacity, class.RefillRate, nowMillis(), ttlSeconds(class), needed, contentLength).StringSlice()
	if err != nil {
		return Bucket{}, 0, false, fmt.Errorf("ratelimit: get-or-create-and-consume %q: %w", key, err)
	}
	tokens, _ := strconv.ParseFloat(res[0], 64)
	consumed, _ := strconv.Atoi(res[1])
	success := res[2] == "1"
	cl, _ := strconv.ParseInt(res[3], 10, 64)

	return Bucket{
		Key:           key,
		Tokens:        tokens,
		Capacity:      class.Capacity,
		RefillRate:    class.RefillRate,
		ContentLength: cl,
	}, consumed, success, nil
}

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, class BucketClass, delta int, contentLength int64) (float64, error) {
	res, err := consumeTokensScript.Run(ctx, s.client, []string{key},
		class.Capacity, class.RefillRate, nowMillis(), ttlSeconds(class), delta, contentLength).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: consume-tokens %q: %w", key, err)
	}
	tokens, _ := strconv.ParseFloat(res.(string), 64)
	return tokens, nil
}

func (s *RedisStore) GetBucket(ctx context.Context, key string) (Bucket, bool, error) {
	vals, err := s.client.HMGet(ctx, key, "tokens", "lastRefill", "contentLength", "capacity", "refillRate").Result()
	if err != nil {
		return Bucket{}, false, fmt.Errorf("ratelimit: get-bucket %q: %w", key, err)
	}
	if vals[0] == nil {
		return Bucket{}, false, nil
	}

	tokens, _ := strconv.ParseFloat(vals[0].(string), 64)
	lastRefillMs, _ := strconv.ParseInt(vals[1].(string), 10, 64)
	var contentLength int64
	if vals[2] != nil {
		contentLength, _ = strconv.ParseInt(vals[2].(string), 10, 64)
	}
	capacity, _ := strconv.Atoi(vals[3].(string))
	refillRate, _ := strconv.ParseFloat(vals[4].(string), 64)

	elapsed := time.Since(time.UnixMilli(lastRefillMs)).Seconds()
	tokens = minFloat(float64(capacity), tokens+refillRate*elapsed)

	return Bucket{
		Key:           key,
		Tokens:        tokens,
		Capacity:      capacity,
		RefillRate:    refillRate,
		LastRefill:    time.UnixMilli(lastRefillMs),
		ContentLength: contentLength,
	}, true, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
