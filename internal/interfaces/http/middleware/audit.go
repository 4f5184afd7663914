// Package middleware 提供 HTTP 中间件
package middleware

import (
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/messaging"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Audit 审计日志中间件
// 记录请求概要，写请求同时异步投递到审计流
func Audit(producer *messaging.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)

		logger.Info(c.Request.Context(), "api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
			"user_id", c.GetString("user_id"),
			"request_id", c.GetString("request_id"),
			"trace_id", c.GetString("trace_id"),
			"body_size", c.Writer.Size(),
		)

		if producer == nil || !isMutating(c.Request.Method) {
			return
		}

		msg := &messaging.AuditLogMessage{
			UserID:       c.GetString("user_id"),
			Action:       c.Request.Method + " " + c.FullPath(),
			ResourceType: "http",
			RequestID:    c.GetString("request_id"),
			TraceID:      c.GetString("trace_id"),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			Metadata: map[string]interface{}{
				"status": c.Writer.Status(),
			},
		}
		if _, err := producer.PublishAuditLog(c.Request.Context(), msg); err != nil {
			logger.Warn(c.Request.Context(), "failed to publish audit log", "error", err.Error())
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}
