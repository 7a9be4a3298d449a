package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/models"
	"golang.org/x/sync/semaphore"
)

// SessionLimit bounds how many requests drive the portal at once. Each
// acquisition holds one browser session, so this caps open sessions. A
// request waits up to queueWait for a slot, then gets 429.
func SessionLimit(maxSessions int, queueWait time.Duration) gin.HandlerFunc {
	if maxSessions < 1 {
		maxSessions = 1
	}
	sem := semaphore.NewWeighted(int64(maxSessions))

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), queueWait)
		err := sem.Acquire(ctx, 1)
		cancel()
		if err != nil {
			slog.Warn("no portal session available", "path", c.FullPath(), "wait", queueWait)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.Response{
				Success: false,
				Error:   errorDetail(models.ErrCodeRateLimited, "all portal sessions are busy, retry later"),
			})
			return
		}
		defer sem.Release(1)

		c.Next()
	}
}

func errorDetail(code, msg string) *models.ErrorDetail {
	return &models.ErrorDetail{Code: code, Message: msg, Timestamp: time.Now().UTC()}
}
