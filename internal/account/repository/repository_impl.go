package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, name, credits, ia_credits_used, out_of_ia_credits, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Name,
		account.Credits,
		account.IACreditsUsed,
		account.OutOfIACredits,
		account.Metadata,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindAccountByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, credits, ia_credits_used, out_of_ia_credits, metadata, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) InsertBinding(ctx context.Context, db *gorm.DB, binding *domain.ChannelBinding) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO channel_bindings (id, routing_id, account_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		binding.ID,
		binding.RoutingID,
		binding.AccountID,
		binding.CreatedAt,
	).Error
}

func (r *repo) FindBindingByRoutingID(ctx context.Context, db *gorm.DB, routingID string) (*domain.ChannelBinding, error) {
	var binding domain.ChannelBinding
	err := db.WithContext(ctx).Raw(
		`SELECT id, routing_id, account_id, created_at
		 FROM channel_bindings WHERE routing_id = ?`,
		routingID,
	).Scan(&binding).Error
	if err != nil {
		return nil, err
	}
	if binding.ID == 0 {
		return nil, nil
	}
	return &binding, nil
}
