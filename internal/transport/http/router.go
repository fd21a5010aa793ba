package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/eventcore/internal/command"
	"github.com/richardliu001/eventcore/internal/config"
	"github.com/richardliu001/eventcore/internal/dispatcher"
	"github.com/richardliu001/eventcore/internal/idgen"
	"go.uber.org/zap"
)

// NewRouter builds the command API's gin engine: logging and per-IP
// rate limiting middleware (kept from the teacher), the command routes,
// a database liveness probe, and the operator surface spec §6 names --
// getMetrics() and triggerProcessing(). disp may be nil (e.g. in tests
// that exercise only the command routes), in which case the metrics and
// trigger routes are not registered.
func NewRouter(svc *command.Service, disp *dispatcher.Dispatcher, ids *idgen.Generator, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc, ids)
	r.GET("/v1/health", healthHandler(svc))
	if disp != nil {
		r.GET("/v1/metrics", metricsHandler(disp))
		r.POST("/v1/trigger", triggerHandler(disp))
	}
	return r
}

// healthHandler answers memory liveness (the process responded at all)
// and database liveness (spec §6 "a health probe answers memory and
// database liveness"), mirroring the teacher's rdb.Ping startup check.
func healthHandler(svc *command.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := svc.Store.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func metricsHandler(disp *dispatcher.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := disp.GetMetrics(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pending":    m.Pending,
			"processing": m.Processing,
			"completed":  m.Completed,
			"failed":     m.Failed,
		})
	}
}

// triggerHandler forces one dispatcher tick synchronously (spec §6
// triggerProcessing()), useful for operators or tests that don't want to
// wait for the next ticker fire.
func triggerHandler(disp *dispatcher.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		disp.TriggerOnce(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"status": "triggered"})
	}
}
