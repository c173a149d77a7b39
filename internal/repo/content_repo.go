package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// UpsertContent inserts a catalog item or refreshes its price fields.
func UpsertContent(ctx context.Context, db *gorm.DB, c *domain.Content) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "base_price", "credential_discount_bps", "active", "updated_at"}),
	}).Create(c).Error
}

// GetContent fetches an active catalog item, or ErrNotFound.
func GetContent(ctx context.Context, db *gorm.DB, id string) (*domain.Content, error) {
	var c domain.Content
	if err := db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
