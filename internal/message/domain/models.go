package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	FromRoleClient = "client"
	FromRoleAgent  = "agent"
)

// Message is one append-only conversation entry.
type Message struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID     snowflake.ID      `gorm:"not null;index" json:"account_id"`
	From          string            `gorm:"column:sender;type:text;not null" json:"from"`
	To            string            `gorm:"column:recipient;type:text;not null" json:"to"`
	Content       string            `gorm:"type:text;not null" json:"content"`
	Timestamp     time.Time         `gorm:"not null" json:"timestamp"`
	FromRole      string            `gorm:"type:text;not null" json:"from_role"`
	IsAI          bool              `gorm:"column:is_ai;not null;default:false" json:"is_ai"`
	CorrelationID *string           `gorm:"column:meta_msg_id;type:text" json:"meta_msg_id,omitempty"`
	Status        *string           `gorm:"type:text" json:"status,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

type AppendRequest struct {
	AccountID     snowflake.ID
	From          string
	To            string
	Content       string
	Timestamp     time.Time
	FromRole      string
	IsAI          bool
	CorrelationID string
	Metadata      map[string]any
}

type Service interface {
	// Append stores the message. The second return reports whether a new
	// row was written; a correlation id seen before yields false.
	Append(ctx context.Context, req AppendRequest) (*Message, bool, error)

	// MarkStatus updates the delivery status of the message carrying the
	// correlation id. Unknown correlation ids are a silent no-op.
	MarkStatus(ctx context.Context, accountID snowflake.ID, correlationID, status string) error
}

var (
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrInvalidSender    = errors.New("invalid_sender")
	ErrInvalidRecipient = errors.New("invalid_recipient")
	ErrInvalidTimestamp = errors.New("invalid_timestamp")
	ErrInvalidFromRole  = errors.New("invalid_from_role")
	ErrInvalidStatus    = errors.New("invalid_status")
)
