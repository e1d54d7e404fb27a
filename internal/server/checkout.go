package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/turioshq/gateway/internal/payment/checkout"
)

type createCheckoutRequest struct {
	AccountID string `json:"account_id"`
	PriceID   string `json:"price_id"`
}

// CreateCheckoutSession opens a hosted top-up page for the account.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid value"))
		return
	}
	if strings.TrimSpace(req.PriceID) == "" {
		AbortWithError(c, newValidationError("price_id", "invalid_price", "invalid value"))
		return
	}

	ctx := c.Request.Context()
	if _, err := s.accountSvc.GetByID(ctx, accountID); err != nil {
		AbortWithError(c, err)
		return
	}

	session, err := s.checkoutSvc.CreateSession(ctx, checkout.CreateSessionRequest{
		AccountID: accountID,
		PriceID:   strings.TrimSpace(req.PriceID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":  session.ID,
		"url": session.URL,
	})
}
