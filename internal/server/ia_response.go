package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	"github.com/turioshq/gateway/internal/observability/logger"
	"go.uber.org/zap"
)

type agentResponseRequest struct {
	AccountID  string `json:"account_id"`
	Phone      string `json:"phone"`
	TokensUsed int64  `json:"tokens_used"`
	ReplyText  string `json:"reply_text"`
}

// HandleAgentResponse settles token spend reported by the automation
// backend and optionally stores the generated reply.
func (s *Server) HandleAgentResponse(c *gin.Context) {
	var req agentResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid value"))
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		AbortWithError(c, newValidationError("phone", "invalid_phone", "invalid value"))
		return
	}

	ctx := c.Request.Context()
	if err := s.ledgerSvc.TryConsume(ctx, accountID, req.TokensUsed); err != nil {
		AbortWithError(c, err)
		return
	}

	if reply := strings.TrimSpace(req.ReplyText); reply != "" {
		_, _, err := s.messageSvc.Append(ctx, messagedomain.AppendRequest{
			AccountID: accountID,
			From:      s.cfg.AttendantIdentity,
			To:        phone,
			Content:   reply,
			Timestamp: time.Now().UTC(),
			FromRole:  messagedomain.FromRoleAgent,
			IsAI:      true,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	// One automated turn per settlement: the contact is handed back to a
	// human until automation is re-enabled.
	if s.cfg.AutomationAutoDisable {
		if err := s.contactSvc.SetAutomationEnabled(ctx, accountID, phone, false); err != nil {
			logger.FromContext(ctx).Warn("automation auto disable failed",
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"tokens_used": req.TokensUsed,
	})
}
