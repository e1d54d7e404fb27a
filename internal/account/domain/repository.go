package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, account *Account) error
	FindAccountByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	InsertBinding(ctx context.Context, db *gorm.DB, binding *ChannelBinding) error
	FindBindingByRoutingID(ctx context.Context, db *gorm.DB, routingID string) (*ChannelBinding, error)
}
