package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	inbounddomain "github.com/turioshq/gateway/internal/inbound/domain"
	"github.com/turioshq/gateway/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonSourceRate = "source-rate"

// VerifyWebhook answers the provider subscription handshake. The raw
// challenge echoes back only on an exact token match.
func (s *Server) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && s.cfg.WebhookVerifyToken != "" && token == s.cfg.WebhookVerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}

	c.String(http.StatusForbidden, "verification failed")
}

// IngestWebhook accepts both supported payload shapes, runs the batch
// through the pipeline and acknowledges. Per-message failures never turn
// into a non-2xx response, the provider would only redeliver.
func (s *Server) IngestWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	batch, err := s.normalizer.Decode(payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if routingID := batchRoutingID(batch); routingID != "" {
		c.Set("routing_id", routingID)
	}

	if !s.allowBatch(c, batch) {
		return
	}

	s.pipelineSvc.ProcessBatch(c.Request.Context(), batch)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// allowBatch applies the per-source rate limit. Checks fail open: a
// broken limiter backend must not drop provider traffic.
func (s *Server) allowBatch(c *gin.Context, batch inbounddomain.Batch) bool {
	if s.webhookLimiter == nil || !s.webhookLimiter.Enabled() {
		return true
	}

	ctx := c.Request.Context()
	for _, routingID := range batchSources(batch) {
		allowed, err := s.webhookLimiter.AllowSource(ctx, routingID)
		if err != nil {
			logger.FromContext(ctx).Warn("webhook rate limit check failed", zap.Error(err))
			continue
		}
		if !allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied("webhook", rateLimitReasonSourceRate)
			}
			AbortWithError(c, ErrRateLimited)
			return false
		}
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitAllowed("webhook")
	}
	return true
}

func batchRoutingID(batch inbounddomain.Batch) string {
	if len(batch.Messages) > 0 {
		return strings.TrimSpace(batch.Messages[0].To)
	}
	if len(batch.Statuses) > 0 {
		return strings.TrimSpace(batch.Statuses[0].RoutingID)
	}
	return ""
}

func batchSources(batch inbounddomain.Batch) []string {
	seen := map[string]struct{}{}
	var sources []string
	add := func(routingID string) {
		routingID = strings.TrimSpace(routingID)
		if routingID == "" {
			return
		}
		if _, ok := seen[routingID]; ok {
			return
		}
		seen[routingID] = struct{}{}
		sources = append(sources, routingID)
	}
	for _, msg := range batch.Messages {
		add(msg.To)
	}
	for _, status := range batch.Statuses {
		add(status.RoutingID)
	}
	return sources
}
