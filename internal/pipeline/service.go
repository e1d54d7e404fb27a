package pipeline

import (
	"context"
	"errors"
	"fmt"

	accountdomain "github.com/turioshq/gateway/internal/account/domain"
	contactdomain "github.com/turioshq/gateway/internal/contact/domain"
	"github.com/turioshq/gateway/internal/forwarder"
	inbounddomain "github.com/turioshq/gateway/internal/inbound/domain"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	obsmetrics "github.com/turioshq/gateway/internal/observability/metrics"
	"github.com/turioshq/gateway/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	AccountSvc accountdomain.Service
	ContactSvc contactdomain.Service
	MessageSvc messagedomain.Service
	Forwarder  *forwarder.Forwarder
	Limiter    *ratelimit.WebhookIngestLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics             `optional:"true"`
}

// Service runs the ingest pipeline: resolve, register, persist, forward.
type Service struct {
	log        *zap.Logger
	accountSvc accountdomain.Service
	contactSvc contactdomain.Service
	messageSvc messagedomain.Service
	forwarder  *forwarder.Forwarder
	limiter    *ratelimit.WebhookIngestLimiter
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		log:        p.Log.Named("pipeline.service"),
		accountSvc: p.AccountSvc,
		contactSvc: p.ContactSvc,
		messageSvc: p.MessageSvc,
		forwarder:  p.Forwarder,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessBatch handles every item independently. A failing message is
// logged and skipped so its siblings still go through.
func (s *Service) ProcessBatch(ctx context.Context, batch inbounddomain.Batch) {
	for _, msg := range batch.Messages {
		s.processMessage(ctx, msg)
	}
	for _, status := range batch.Statuses {
		s.processStatus(ctx, status)
	}
}

func (s *Service) processMessage(ctx context.Context, msg inbounddomain.Message) {
	accountID, err := s.accountSvc.Resolve(ctx, msg.To)
	if err != nil {
		if errors.Is(err, accountdomain.ErrBindingNotFound) {
			s.log.Debug("no binding for routing id, message skipped",
				zap.String("routing_id", msg.To),
			)
			return
		}
		s.log.Warn("binding resolution failed",
			zap.String("routing_id", msg.To),
			zap.Error(err),
		)
		return
	}

	stored, inserted, err := s.messageSvc.Append(ctx, messagedomain.AppendRequest{
		AccountID:     accountID,
		From:          msg.From,
		To:            msg.To,
		Content:       msg.Content,
		Timestamp:     msg.Timestamp,
		FromRole:      messagedomain.FromRoleClient,
		CorrelationID: msg.CorrelationID,
		Metadata:      map[string]any{"format": msg.Format},
	})
	if err != nil {
		s.log.Warn("message append failed",
			zap.String("account_id", accountID.String()),
			zap.String("from", msg.From),
			zap.Error(err),
		)
		return
	}
	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordMessageIngested(msg.Format)
	}

	// The upsert runs on redeliveries too, so a contact row lost to a
	// transient failure on the first delivery is repaired on retry.
	contact, err := s.contactSvc.EnsureExists(ctx, accountID, msg.From, fmt.Sprintf("Cliente %s", msg.From))
	if err != nil {
		s.log.Warn("contact upsert failed",
			zap.String("account_id", accountID.String()),
			zap.String("phone", msg.From),
			zap.Error(err),
		)
		return
	}

	if !inserted {
		// provider redelivery: stored once, forwarded once
		return
	}

	// concurrent redeliveries of the same conversation trigger one forward
	if s.limiter.Enabled() {
		token, ok, err := s.limiter.TryLockConversation(ctx, accountID.String(), msg.From)
		if err != nil {
			s.log.Warn("conversation lock unavailable, forwarding anyway", zap.Error(err))
		} else if !ok {
			return
		} else {
			defer func() {
				if err := s.limiter.ReleaseConversation(ctx, accountID.String(), msg.From, token); err != nil {
					s.log.Warn("conversation lock release failed", zap.Error(err))
				}
			}()
		}
	}

	s.forwarder.MaybeForward(ctx, stored, contact)
}

func (s *Service) processStatus(ctx context.Context, status inbounddomain.StatusUpdate) {
	accountID, err := s.accountSvc.Resolve(ctx, status.RoutingID)
	if err != nil {
		if !errors.Is(err, accountdomain.ErrBindingNotFound) {
			s.log.Warn("binding resolution failed for status update",
				zap.String("routing_id", status.RoutingID),
				zap.Error(err),
			)
		}
		return
	}

	if err := s.messageSvc.MarkStatus(ctx, accountID, status.CorrelationID, status.Status); err != nil {
		s.log.Warn("status update failed",
			zap.String("correlation_id", status.CorrelationID),
			zap.Error(err),
		)
	}
}
