package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/config"
	ledgerdomain "github.com/turioshq/gateway/internal/ledger/domain"
	obsmetrics "github.com/turioshq/gateway/internal/observability/metrics"
	"github.com/turioshq/gateway/internal/payment/adapters"
	paymentdomain "github.com/turioshq/gateway/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	LedgerSvc  ledgerdomain.Service
	Repo       paymentdomain.Repository
	Adapters   adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	ledgerSvc   ledgerdomain.Service
	repo        paymentdomain.Repository
	adapters    adapters.Registry
	secret      string
	planCredits int64
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		ledgerSvc:   p.LedgerSvc,
		repo:        p.Repo,
		adapters:    p.Adapters,
		secret:      strings.TrimSpace(p.Cfg.Payment.WebhookSecret),
		planCredits: p.Cfg.PlanCredits,
		obsMetrics:  p.ObsMetrics,
	}
}

// IngestWebhook verifies, parses and settles a provider notification. A
// replayed event credits the account at most once.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.Has(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.Adapter(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Config:   map[string]any{"webhook_secret": s.secret},
	})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("payment event ignored", zap.String("provider", provider))
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.processEvent(ctx, event)
}

func (s *Service) processEvent(ctx context.Context, event *paymentdomain.TopUpEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := time.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		AccountID:       event.AccountID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.ledgerSvc.TopUp(ctx, stored.AccountID, s.planCredits); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(event.Provider, event.Type)
	}
	s.log.Info("account credits replenished",
		zap.String("account_id", stored.AccountID.String()),
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
	)

	return nil
}

func validateEvent(event *paymentdomain.TopUpEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.AccountID == 0 {
		return paymentdomain.ErrInvalidAccount
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
