package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/eventcore/internal/callerctx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoggingMiddleware logs method, path, status, and latency for every
// request; adapted from the teacher's http/middleware.go, extended to
// surface the correlation id commandHandler binds onto the request
// context (spec §4.6) for routes that set one.
func LoggingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if caller, ok := callerctx.Current(c.Request.Context()); ok {
			log.Infof("%s %s %d %s correlationId=%s",
				c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), caller.CorrelationID)
			return
		}
		log.Infof("%s %s %d %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// RateLimitMiddleware is a per-IP token bucket limiter, kept verbatim
// from the teacher's http/middleware.go.
func RateLimitMiddleware(rps, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	buckets := make(map[string]*rate.Limiter)
	newLimiter := func() *rate.Limiter { return rate.NewLimiter(rate.Limit(rps), burst) }
	return func(c *gin.Context) {
		ip, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		mu.Lock()
		lim, ok := buckets[ip]
		if !ok {
			lim = newLimiter()
			buckets[ip] = lim
		}
		mu.Unlock()
		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
