package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/ledger/domain"
	obsmetrics "github.com/turioshq/gateway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		obsMetrics: p.ObsMetrics,
	}
}

// TryConsume is a single conditional update. Concurrent consumers race on
// the WHERE clause, so the sum of accepted charges never exceeds credits.
func (s *Service) TryConsume(ctx context.Context, accountID snowflake.ID, amount int64) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	if amount < 0 {
		return domain.ErrInvalidAmount
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET ia_credits_used = ia_credits_used + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND ia_credits_used + ? <= credits`,
		amount,
		accountID,
		amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	exists, err := s.accountExists(ctx, accountID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrAccountNotFound
	}

	if err := s.markDepleted(ctx, accountID); err != nil {
		return err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordQuotaDenied()
	}
	s.log.Warn("credit quota exceeded",
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", amount),
	)
	return domain.ErrQuotaExceeded
}

func (s *Service) TopUp(ctx context.Context, accountID snowflake.ID, planCredits int64) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	if planCredits < 0 {
		return domain.ErrInvalidAmount
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits = ?, ia_credits_used = 0, out_of_ia_credits = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		planCredits,
		false,
		accountID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	s.log.Info("credits topped up",
		zap.String("account_id", accountID.String()),
		zap.Int64("plan_credits", planCredits),
	)
	return nil
}

func (s *Service) accountExists(ctx context.Context, accountID snowflake.ID) (bool, error) {
	var exists bool
	err := s.db.WithContext(ctx).Raw(
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)`,
		accountID,
	).Scan(&exists).Error
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Service) markDepleted(ctx context.Context, accountID snowflake.ID) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE accounts SET out_of_ia_credits = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		true,
		accountID,
	).Error
}
