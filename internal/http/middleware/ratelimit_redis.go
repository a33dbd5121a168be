package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"taskify/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter initializes a shared Redis client used by the middleware.
// Provide addr (host:port), password and db index. It reports whether Redis is
// in use; when it is not, the limiters count in process memory instead.
func InitRedisRateLimiter(addr, password string, db int) bool {
	if addr == "" {
		return false
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory rate limits", "addr", addr, "error", err)
		_ = client.Close()
		return false
	}
	redisClient = client
	return true
}

// CloseRedis releases the shared client.
func CloseRedis() error {
	if redisClient == nil {
		return nil
	}
	err := redisClient.Close()
	redisClient = nil
	return err
}

// PingRedis reports Redis health; ok is false when Redis is not in use.
func PingRedis(ctx context.Context) (ok bool, err error) {
	if redisClient == nil {
		return false, nil
	}
	return true, redisClient.Ping(ctx).Err()
}

// fixedWindow counts a hit for key, in Redis when configured and in
// fallback otherwise. Redis errors fail open.
func fixedWindow(ctx context.Context, fallback *memoryLimiter, key string, window time.Duration) (int64, error) {
	if redisClient == nil {
		return fallback.hit(key, window), nil
	}

	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		// first increment, set expiry
		redisClient.Expire(ctx, key, window)
	}
	return val, nil
}

// RedisRateLimit implements a fixed-window rate limiter per client IP using Redis INCR/EXPIRE.
// key format: rl:<window_seconds>:<identifier>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	fallback := newMemoryLimiter()
	return func(c *gin.Context) {
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()

		val, err := fixedWindow(c.Request.Context(), fallback, key, window)
		if err != nil {
			// on Redis error, fail-open (allow) but set header
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

		if val > int64(maxRequests) {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// UserRateLimit limits write requests per authenticated user rather than per IP.
// Requires JWT middleware to run before this.
func UserRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	fallback := newMemoryLimiter()
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
			return
		}

		key := "write_rl:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		val, err := fixedWindow(c.Request.Context(), fallback, key, window)
		if err != nil {
			c.Header("X-WriteRateLimit-Error", "redis-error")
			c.Next()
			return
		}

		c.Header("X-WriteRateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-WriteRateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

		if val > int64(maxRequests) {
			RLBlocked.WithLabelValues("write:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "write rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues("write:" + c.FullPath()).Inc()
		c.Next()
	}
}
