package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/contact/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert inserts the contact, leaving any existing row untouched. The
// uniqueness lives in the storage constraint, not in a read-then-write.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, contact *domain.Contact) (bool, error) {
	if contact == nil {
		return false, errors.New("missing_contact")
	}
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		return r.upsertSQLite(ctx, db, contact)
	}
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "phone"}},
		DoNothing: true,
	}).Create(contact)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) upsertSQLite(ctx context.Context, db *gorm.DB, contact *domain.Contact) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO contacts (id, account_id, phone, name, photo_url, ai_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, phone) DO NOTHING`,
		contact.ID,
		contact.AccountID,
		contact.Phone,
		contact.Name,
		contact.PhotoURL,
		contact.AutomationEnabled,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByPhone(ctx context.Context, db *gorm.DB, accountID snowflake.ID, phone string) (*domain.Contact, error) {
	var contact domain.Contact
	err := db.WithContext(ctx).
		Where("account_id = ? AND phone = ?", accountID, phone).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *repo) UpdateAutomationEnabled(ctx context.Context, db *gorm.DB, accountID snowflake.ID, phone string, enabled bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contacts SET ai_enabled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE account_id = ? AND phone = ?`,
		enabled,
		accountID,
		phone,
	).Error
}
