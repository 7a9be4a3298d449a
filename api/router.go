package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/api/handler"
	"github.com/use-agent/fonfetch/api/middleware"
	"github.com/use-agent/fonfetch/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Funds:   Auth (if enabled) → RateLimit → SessionLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(svc handler.FundService, stats handler.StatsProvider, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(stats, startTime))

	funds := v1.Group("/funds")
	if cfg.Auth.Enabled {
		funds.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	funds.Use(middleware.RateLimit(cfg.RateLimit))
	funds.Use(middleware.SessionLimit(cfg.Browser.MaxSessions, cfg.Timing.RequestTimeout))

	timeout := cfg.Timing.RequestTimeout
	funds.GET("/:code", handler.GetFund(svc, timeout))
	funds.GET("/:code/nav", handler.GetNav(svc, timeout))
	funds.GET("/:code/performance", handler.GetPerformance(svc, timeout))

	return r
}
