package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/kanrigate/internal/auth"
	"github.com/example/kanrigate/internal/logging"
	"github.com/example/kanrigate/internal/metrics"
)

const headerRequestID = "X-Request-ID"

// observe times the request, tags it with a request ID, then logs it and
// records its metrics. Server errors log at error, client errors at warn.
func observe(logger *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(auth.ContextKeyStart, start)

		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, status, latency)

		attrs := []any{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			logging.Status(strconv.Itoa(status)),
			slog.Duration(logging.KeyDuration, latency),
		}
		if err := c.Errors.Last(); err != nil {
			attrs = append(attrs, logging.Err(err.Err))
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request finished with server error", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("request finished with client error", attrs...)
		default:
			logger.Info("request finished", attrs...)
		}
	}
}

// corsPolicy allows any origin, matching a browser UI served from another
// host. Preflight requests are answered with 204.
func corsPolicy() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", headerRequestID},
		ExposeHeaders:    []string{"Content-Disposition", headerRequestID},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
