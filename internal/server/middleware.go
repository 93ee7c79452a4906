package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campuskit/billing/pkg/tenantctx"
)

const (
	HeaderTenant    = "X-Tenant-ID"
	HeaderActor     = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// TenantContext resolves the tenant and actor from request headers set by
// the upstream auth layer and stores them on the request context.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, newValidationError(HeaderTenant, "missing_tenant", "tenant header is required"))
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError(HeaderTenant, "invalid_tenant", "invalid tenant header"))
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		if actorID := strings.TrimSpace(c.GetHeader(HeaderActor)); actorID != "" {
			ctx = tenantctx.WithActor(ctx, tenantctx.Actor{
				ID:   actorID,
				Role: strings.TrimSpace(c.GetHeader(HeaderActorRole)),
			})
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
