package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientInfo struct {
	start time.Time
	count int
}

// memoryLimiter is a fixed-window counter kept in process memory. It backs
// the rate limit middleware when Redis is not configured.
type memoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
	now     func() time.Time
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{
		clients: make(map[string]*clientInfo),
		now:     time.Now,
	}
}

// hit counts one request for key and returns the count in the current window.
func (l *memoryLimiter) hit(key string, window time.Duration) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ci, ok := l.clients[key]
	if !ok || now.Sub(ci.start) > window {
		ci = &clientInfo{start: now}
		l.clients[key] = ci
		if len(l.clients) > 10000 {
			l.evict(now, window)
		}
	}
	ci.count++
	return int64(ci.count)
}

// evict drops expired windows. Caller holds mu.
func (l *memoryLimiter) evict(now time.Time, window time.Duration) {
	for k, ci := range l.clients {
		if now.Sub(ci.start) > window {
			delete(l.clients, k)
		}
	}
}

// SimpleRateLimit blocks clients that send more than maxRequests per window
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	l := newMemoryLimiter()
	return func(c *gin.Context) {
		if l.hit(c.ClientIP(), window) > int64(maxRequests) {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "rate limit exceeded"})
			return
		}
		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
