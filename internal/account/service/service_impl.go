package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/account/domain"
	"github.com/turioshq/gateway/internal/cache"
	"github.com/turioshq/gateway/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	ResolverCache cache.BindingResolverCache
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	resolverCache cache.BindingResolverCache
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("account.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		resolverCache: p.ResolverCache,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}
	credits := req.Credits
	if credits < 0 {
		credits = 0
	}

	now := time.Now().UTC()
	account := domain.Account{
		ID:        s.genID.Generate(),
		Name:      name,
		Credits:   credits,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertAccount(ctx, s.db, &account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Account, error) {
	if id == 0 {
		return nil, domain.ErrInvalidAccount
	}
	account, err := s.repo.FindAccountByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) Bind(ctx context.Context, req domain.BindChannelRequest) (domain.ChannelBinding, error) {
	routingID := strings.TrimSpace(req.RoutingID)
	if routingID == "" {
		return domain.ChannelBinding{}, domain.ErrInvalidRoutingID
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return domain.ChannelBinding{}, domain.ErrInvalidAccount
	}

	account, err := s.repo.FindAccountByID(ctx, s.db, accountID)
	if err != nil {
		return domain.ChannelBinding{}, err
	}
	if account == nil {
		return domain.ChannelBinding{}, domain.ErrAccountNotFound
	}

	binding := domain.ChannelBinding{
		ID:        s.genID.Generate(),
		RoutingID: routingID,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertBinding(ctx, s.db, &binding); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ChannelBinding{}, domain.ErrBindingExists
		}
		return domain.ChannelBinding{}, err
	}

	if s.resolverCache != nil {
		s.resolverCache.SetBinding(routingID, accountID)
	}
	return binding, nil
}

func (s *Service) Resolve(ctx context.Context, routingID string) (snowflake.ID, error) {
	routingID = strings.TrimSpace(routingID)
	if routingID == "" {
		return 0, domain.ErrInvalidRoutingID
	}

	if s.resolverCache != nil {
		if cached, ok := s.resolverCache.GetBinding(routingID); ok {
			return cached, nil
		}
	}

	binding, err := s.repo.FindBindingByRoutingID(ctx, s.db, routingID)
	if err != nil {
		return 0, err
	}
	if binding == nil {
		return 0, domain.ErrBindingNotFound
	}

	if s.resolverCache != nil {
		s.resolverCache.SetBinding(routingID, binding.AccountID)
	}
	return binding.AccountID, nil
}
