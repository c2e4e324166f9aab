package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Rate limit keys:
// - ratelimit:{user_id}:messages - fixed window counter, TTL = window
// - ratelimit:http:{client} - fixed window counter for REST calls

type RateLimitConfig struct {
	MessageLimit  int
	MessageWindow time.Duration
	RequestLimit  int
	RequestWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: time.Minute,
		RequestLimit:  300,
		RequestWindow: time.Minute,
	}
}

// RateLimiter counts message sends per user in Redis so the limit holds
// across restarts.
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.MessageLimit <= 0 {
		config.MessageLimit = def.MessageLimit
	}
	if config.MessageWindow < time.Second {
		config.MessageWindow = def.MessageWindow
	}
	if config.RequestLimit <= 0 {
		config.RequestLimit = def.RequestLimit
	}
	if config.RequestWindow < time.Second {
		config.RequestWindow = def.RequestWindow
	}
	return &RateLimiter{client: client, config: config}
}

func messageKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s:messages", userID)
}

func requestKey(client string) string {
	return "ratelimit:http:" + client
}

// AllowRequest consumes one REST call from client's window. client is a user
// id for authenticated routes and the remote address otherwise.
func (r *RateLimiter) AllowRequest(ctx context.Context, client string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, requestKey(client), r.config.RequestLimit, r.config.RequestWindow)
}

// AllowMessage consumes one send from userID's window.
func (r *RateLimiter) AllowMessage(ctx context.Context, userID uuid.UUID) (bool, error) {
	res, err := r.checkLimit(ctx, messageKey(userID), r.config.MessageLimit, r.config.MessageWindow)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// increment and check in one round trip
var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		local n = redis.call('INCR', key)
		if n == 1 then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}

// ResetUser clears the send counter of userID.
func (r *RateLimiter) ResetUser(ctx context.Context, userID uuid.UUID) error {
	return r.client.Del(ctx, messageKey(userID)).Err()
}
