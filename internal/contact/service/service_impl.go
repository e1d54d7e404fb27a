package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/contact/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contact.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) EnsureExists(ctx context.Context, accountID snowflake.ID, phone, defaultName string) (*domain.Contact, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, domain.ErrInvalidPhone
	}

	now := time.Now().UTC()
	candidate := domain.Contact{
		ID:                s.genID.Generate(),
		AccountID:         accountID,
		Phone:             phone,
		Name:              strings.TrimSpace(defaultName),
		AutomationEnabled: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	inserted, err := s.repo.Upsert(ctx, s.db, &candidate)
	if err != nil {
		return nil, err
	}
	if inserted {
		return &candidate, nil
	}

	existing, err := s.repo.FindByPhone(ctx, s.db, accountID, phone)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrNotFound
	}
	return existing, nil
}

func (s *Service) Get(ctx context.Context, accountID snowflake.ID, phone string) (*domain.Contact, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, domain.ErrInvalidPhone
	}
	return s.repo.FindByPhone(ctx, s.db, accountID, phone)
}

func (s *Service) SetAutomationEnabled(ctx context.Context, accountID snowflake.ID, phone string, enabled bool) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.ErrInvalidPhone
	}
	return s.repo.UpdateAutomationEnabled(ctx, s.db, accountID, phone, enabled)
}
