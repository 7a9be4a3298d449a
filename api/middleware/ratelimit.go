package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused bucket is kept.
const limiterIdle = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit throttles acquisitions per caller and per fund route. Every
// request past this point may open a browser session, so a caller paging
// through NAV history does not starve its own fund lookups. Rejected
// requests get a Retry-After hint.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	lastSweep := time.Now()

	limiterFor := func(key string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(lastSweep) > limiterIdle/12 {
			for k, b := range buckets {
				if now.Sub(b.lastSeen) > limiterIdle {
					delete(buckets, k)
				}
			}
			lastSweep = now
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			buckets[key] = b
		}
		b.lastSeen = now
		return b.limiter
	}

	return func(c *gin.Context) {
		now := time.Now()
		key := callerIdentity(c) + " " + c.FullPath()

		r := limiterFor(key, now).ReserveN(now, 1)
		if !r.OK() {
			rejectRate(c, 0)
			return
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			rejectRate(c, delay)
			return
		}
		c.Next()
	}
}

// callerIdentity is the API key set by Auth, or the client IP.
func callerIdentity(c *gin.Context) string {
	if key := c.GetString(apiKeyContextKey); key != "" {
		return key
	}
	return c.ClientIP()
}

func rejectRate(c *gin.Context, wait time.Duration) {
	if wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, models.Response{
		Success: false,
		Error:   errorDetail(models.ErrCodeRateLimited, "too many fund requests, retry later"),
	})
}
