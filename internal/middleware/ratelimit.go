package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then admits and records the request only
// if it is under the limit, in one atomic step. Scores are microseconds.
// Returns {allowed, count after the request}.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, count}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return {1, count + 1}
`)

// RateLimiter implements a per-IP sliding window limiter on a Redis sorted set
type RateLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	prefix   string
	logger   *slog.Logger
}

// NewRateLimiter allows requests per window for each client IP. prefix
// separates the counters of different routes.
func NewRateLimiter(client *redis.Client, requests int, window time.Duration, prefix string, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		client:   client,
		requests: requests,
		window:   window,
		prefix:   prefix,
		logger:   logger,
	}
}

// Middleware returns the gin handler. Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.requests <= 0 || rl.window <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		ip := c.ClientIP()
		key := "ratelimit:" + rl.prefix + ":" + ip

		now := time.Now()
		res, err := slidingWindow.Run(ctx, rl.client, []string{key},
			now.UnixMicro(), rl.window.Microseconds(), rl.requests, uuid.NewString()).Int64Slice()
		if err == nil && len(res) != 2 {
			err = fmt.Errorf("unexpected rate limit reply %v", res)
		}
		if err != nil {
			rl.logger.WarnContext(ctx, "rate limit check failed, allowing request",
				slog.String("ip", ip),
				slog.String("path", c.Request.URL.Path),
				slog.String("error", err.Error()))
			c.Next()
			return
		}

		allowed, count := res[0] == 1, int(res[1])
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(now.Add(rl.window).Unix(), 10))

		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Too many requests. Please try again later.",
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, rl.requests-count)))
		c.Next()
	}
}
