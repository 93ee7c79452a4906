package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	gatewaydomain "github.com/campuskit/billing/internal/gateway/domain"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// HandleGatewayWebhook ingests a provider callback. Replays and ignored
// event types are acknowledged with 200 so the provider stops retrying;
// everything else goes through the shared error mapping.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	provider := c.Param("provider")

	limit, limitErr := s.webhookLimiter.Allow(c.Request.Context(), provider, c.ClientIP())
	if limitErr == nil && !limit.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(limit.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"status": "rate_limited"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, gatewaydomain.ErrInvalidPayload)
		return
	}

	err = s.webhookSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case errors.Is(err, gatewaydomain.ErrEventAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	case errors.Is(err, gatewaydomain.ErrEventIgnored):
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		AbortWithError(c, err)
	}
}
