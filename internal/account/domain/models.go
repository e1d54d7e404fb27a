package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account is a tenant with an AI credit allowance.
type Account struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	Credits        int64             `gorm:"not null;default:0" json:"credits"`
	IACreditsUsed  int64             `gorm:"column:ia_credits_used;not null;default:0" json:"ia_credits_used"`
	OutOfIACredits bool              `gorm:"column:out_of_ia_credits;not null;default:false" json:"out_of_ia_credits"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// ChannelBinding maps a provider routing identifier to the owning account.
type ChannelBinding struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	RoutingID string       `gorm:"type:text;not null;uniqueIndex" json:"routing_id"`
	AccountID snowflake.ID `gorm:"not null;index" json:"account_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ChannelBinding) TableName() string { return "channel_bindings" }
