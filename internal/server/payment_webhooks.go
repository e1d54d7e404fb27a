package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/turioshq/gateway/internal/payment/domain"
)

const maxPaymentPayloadBytes = 1 << 20

// HandlePaymentWebhook hands the raw provider notification to the payment
// service. Replays acknowledge with 200 so the provider stops retrying.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPaymentPayloadBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	provider := strings.TrimSpace(c.Param("provider"))
	err = s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil, errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		AbortWithError(c, err)
	}
}
