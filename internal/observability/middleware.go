package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per bridge request, tagged with the bridge id.
// Handler errors attached with c.Error are included; 4xx logs at warn and
// 5xx at error.
func RequestLogger(logger zerolog.Logger, id string) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Str("id", id).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		if q := c.Request.URL.RawQuery; q != "" {
			event = event.Str("query", q)
		}
		if err := c.Errors.Last(); err != nil {
			event = event.Err(err.Err)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("request")
	}
}

// RequestMetricsMiddleware records per-route counts; node labels the serving bridge.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		RecordHTTPRequest(node, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
