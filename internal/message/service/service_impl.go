package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/message/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("message.service"),
		genID: p.GenID,
	}
}

func (s *Service) Append(ctx context.Context, req domain.AppendRequest) (*domain.Message, bool, error) {
	if req.AccountID == 0 {
		return nil, false, domain.ErrInvalidAccount
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		return nil, false, domain.ErrInvalidSender
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		return nil, false, domain.ErrInvalidRecipient
	}
	if req.Timestamp.IsZero() {
		return nil, false, domain.ErrInvalidTimestamp
	}
	fromRole := strings.TrimSpace(req.FromRole)
	switch fromRole {
	case domain.FromRoleClient, domain.FromRoleAgent:
	default:
		return nil, false, domain.ErrInvalidFromRole
	}

	correlationID := strings.TrimSpace(req.CorrelationID)

	now := time.Now().UTC()
	record := &domain.Message{
		ID:        s.genID.Generate(),
		AccountID: req.AccountID,
		From:      from,
		To:        to,
		Content:   req.Content,
		Timestamp: req.Timestamp.UTC(),
		FromRole:  fromRole,
		IsAI:      req.IsAI,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if correlationID != "" {
		record.CorrelationID = &correlationID
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted, err := s.insertMessage(ctx, record, correlationID)
	if err != nil {
		return nil, false, err
	}

	// Redelivery: hand back the stored row instead of the rejected one.
	if !inserted && correlationID != "" {
		existing, err := s.findByCorrelationID(ctx, req.AccountID, correlationID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	return record, inserted, nil
}

func (s *Service) MarkStatus(ctx context.Context, accountID snowflake.ID, correlationID, status string) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return domain.ErrInvalidStatus
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE messages SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE account_id = ? AND meta_msg_id = ?`,
		status,
		accountID,
		correlationID,
	).Error
}

func (s *Service) insertMessage(ctx context.Context, record *domain.Message, correlationID string) (bool, error) {
	if record == nil {
		return false, errors.New("missing_message")
	}
	if strings.EqualFold(s.db.Dialector.Name(), "sqlite") {
		return s.insertMessageSQLite(ctx, record, correlationID)
	}
	db := s.db.WithContext(ctx)
	if correlationID != "" {
		db = db.Clauses(buildCorrelationConflictClause(s.db))
	}
	result := db.Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) insertMessageSQLite(ctx context.Context, record *domain.Message, correlationID string) (bool, error) {
	query := `INSERT INTO messages (
		id, account_id, sender, recipient, content, timestamp,
		from_role, is_ai, meta_msg_id, status, metadata, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if correlationID != "" {
		query += " ON CONFLICT (account_id, meta_msg_id) DO NOTHING"
	}
	result := s.db.WithContext(ctx).Exec(
		query,
		record.ID,
		record.AccountID,
		record.From,
		record.To,
		record.Content,
		record.Timestamp,
		record.FromRole,
		record.IsAI,
		record.CorrelationID,
		record.Status,
		record.Metadata,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) findByCorrelationID(ctx context.Context, accountID snowflake.ID, correlationID string) (*domain.Message, error) {
	var record domain.Message
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND meta_msg_id = ?", accountID, correlationID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func buildCorrelationConflictClause(db *gorm.DB) clause.OnConflict {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "meta_msg_id"}},
		DoNothing: true,
	}
	if db != nil && strings.EqualFold(db.Dialector.Name(), "postgres") {
		conflict.TargetWhere = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "meta_msg_id IS NOT NULL"},
		}}
	}
	return conflict
}
