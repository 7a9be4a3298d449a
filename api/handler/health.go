package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatsProvider reports portal session usage.
type StatsProvider interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports session utilisation and degrades status when every session is busy.
func Health(sp StatsProvider, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sp.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions >= stats.MaxSessions {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			SessionStats: stats,
			Version:      Version,
		})
	}
}
