package middleware

import (
	"time"

	"greendrake/chambers/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request and records it in the HTTP metrics.
// Routes are reported by their pattern so ids do not explode label cardinality.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if p, ok := PrincipalFrom(c); ok {
			ev = ev.Str("user_id", p.UserID.Hex())
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
