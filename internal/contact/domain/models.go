package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Contact is a conversation counterpart scoped to one account.
// The same phone may exist under different accounts independently.
type Contact struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID         snowflake.ID `gorm:"not null;uniqueIndex:idx_contacts_account_phone" json:"account_id"`
	Phone             string       `gorm:"type:text;not null;uniqueIndex:idx_contacts_account_phone" json:"phone"`
	Name              string       `gorm:"type:text;not null" json:"name"`
	PhotoURL          *string      `gorm:"type:text" json:"photo_url,omitempty"`
	AutomationEnabled bool         `gorm:"column:ai_enabled;not null;default:true" json:"ai_enabled"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }

type Service interface {
	// EnsureExists registers the contact if it is not known yet. Existing
	// rows keep their stored profile, the provided defaults never overwrite.
	EnsureExists(ctx context.Context, accountID snowflake.ID, phone, defaultName string) (*Contact, error)
	Get(ctx context.Context, accountID snowflake.ID, phone string) (*Contact, error)
	SetAutomationEnabled(ctx context.Context, accountID snowflake.ID, phone string, enabled bool) error
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, contact *Contact) (bool, error)
	FindByPhone(ctx context.Context, db *gorm.DB, accountID snowflake.ID, phone string) (*Contact, error)
	UpdateAutomationEnabled(ctx context.Context, db *gorm.DB, accountID snowflake.ID, phone string, enabled bool) error
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidPhone   = errors.New("invalid_phone")
	ErrNotFound       = errors.New("contact_not_found")
)
