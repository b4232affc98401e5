package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/service"
)

type auditRecorder interface {
	Record(ctx context.Context, entry service.AuditEntry)
}

// Audit records a trail entry after each successful request on the wrapped
// route group. Failed requests (4xx/5xx) are not recorded here; security
// violations are recorded by the JWT layer.
func Audit(recorder auditRecorder, action models.AuditAction, modelName, idParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			if typed, ok := claims.(*models.JWTClaims); ok {
				userID = &typed.UserID
			}
		}

		recorder.Record(c.Request.Context(), service.AuditEntry{
			ModelName:   modelName,
			RecordID:    c.Param(idParam),
			UserID:      userID,
			Action:      action,
			Description: c.Request.Method + " " + c.FullPath(),
			NewValues: map[string]interface{}{
				"status":     c.Writer.Status(),
				"latency_ms": time.Since(start).Milliseconds(),
			},
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
	}
}
