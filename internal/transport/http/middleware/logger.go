package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appLogger "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/logger"
)

// Logger writes one access log line per request after the handler chain has
// run, so the caller identity resolved further down is included.
// Client addresses are masked.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", c.Writer.Header().Get(requestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
			zap.Stringer("client_kind", ClientKindOf(c)),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}
		if identity, ok := CurrentIdentity(c); ok {
			fields = append(fields, zap.String("role", string(identity.Role)))
			if identity.LockID != "" {
				fields = append(fields, zap.String("lock_id", identity.LockID))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log.Log(accessLevel(status, len(c.Errors) > 0), "request completed", fields...)
	}
}

func accessLevel(status int, failed bool) zapcore.Level {
	switch {
	case failed || status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
