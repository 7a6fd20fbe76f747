package middleware

import (
	"bytes"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/sixtyapp/engagement-engine/internal/telemetry"
)

// LoggingConfig controls what the request/response logging middleware
// captures.
type LoggingConfig struct {
	SkipPaths   []string
	LogBody     bool
	LogHeaders  bool
	MaxBodySize int
}

// DefaultLoggingConfig returns sane defaults: bodies logged up to 4KB,
// headers logged, health/metrics endpoints skipped.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:   []string{"/health", "/healthz", "/readyz", "/livez", "/metrics"},
		LogBody:     true,
		LogHeaders:  true,
		MaxBodySize: 4096,
	}
}

var redactedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
	"x-cron-secret": true,
}

// LoggingMiddleware returns a fiber handler that logs every request with a
// correlation ID, redacted headers, and (optionally) request/response
// bodies, at a level chosen by status code and duration.
func LoggingMiddleware(config LoggingConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skip := range config.SkipPaths {
			if path == skip {
				return c.Next()
			}
		}

		start := time.Now()

		ctx := c.UserContext()
		correlationID := c.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}
		ctx = telemetry.WithCorrelationID(ctx, correlationID)
		c.SetUserContext(ctx)
		c.Set("X-Correlation-Id", correlationID)

		var reqBody string
		if config.LogBody && len(c.Body()) > 0 {
			reqBody = truncate(c.Body(), config.MaxBodySize)
		}

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		fields := logrus.Fields{
			"correlation_id": correlationID,
			"method":         c.Method(),
			"path":           path,
			"status":         status,
			"duration_ms":    duration.Milliseconds(),
			"ip":             c.IP(),
		}

		if config.LogHeaders {
			headers := make(map[string]string)
			c.Request().Header.VisitAll(func(key, value []byte) {
				k := strings.ToLower(string(key))
				if redactedHeaders[k] {
					headers[k] = "[REDACTED]"
				} else {
					headers[k] = string(value)
				}
			})
			fields["headers"] = headers
		}

		if config.LogBody {
			if reqBody != "" {
				fields["request_body"] = reqBody
			}
			if body := c.Response().Body(); len(body) > 0 {
				fields["response_body"] = truncate(body, config.MaxBodySize)
			}
		}

		if err != nil {
			fields["error"] = err.Error()
		}

		logger := telemetry.GetContextualLogger(ctx)
		entry := logger.WithFields(fields)

		switch {
		case status >= 500 || err != nil:
			entry.Error("request completed with server error")
		case status >= 400:
			entry.Warn("request completed with client error")
		case duration > 2*time.Second:
			entry.Warn("request completed slowly")
		default:
			entry.Info("request completed")
		}

		return err
	}
}

func truncate(body []byte, max int) string {
	if max <= 0 || len(body) <= max {
		return string(body)
	}
	var buf bytes.Buffer
	buf.Write(body[:max])
	buf.WriteString("...[truncated]")
	return buf.String()
}
