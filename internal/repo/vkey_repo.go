package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// ListVerificationKeys returns every key, newest first within a circuit.
func ListVerificationKeys(ctx context.Context, db *gorm.DB) ([]domain.VerificationKey, error) {
	var out []domain.VerificationKey
	err := db.WithContext(ctx).
		Order("circuit_type ASC, created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// CreateVerificationKey inserts a key. ErrDuplicate when (circuit, version)
// already exists.
func CreateVerificationKey(ctx context.Context, db *gorm.DB, k *domain.VerificationKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	return translate(db.WithContext(ctx).Create(k).Error)
}

// ActivateVerificationKey makes (circuit, version) the only active key of
// its circuit. Retired keys cannot be activated.
func ActivateVerificationKey(ctx context.Context, db *gorm.DB, circuit, version string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k domain.VerificationKey
		if err := tx.Where("circuit_type = ? AND version = ? AND retired_at IS NULL", circuit, version).
			First(&k).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&domain.VerificationKey{}).
			Where("circuit_type = ? AND id <> ?", circuit, k.ID).
			Updates(map[string]any{"active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&domain.VerificationKey{}).
			Where("id = ?", k.ID).
			Updates(map[string]any{"active": true, "updated_at": now}).Error
	})
}

// RetireVerificationKey deactivates a key permanently.
func RetireVerificationKey(ctx context.Context, db *gorm.DB, circuit, version string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.VerificationKey{}).
		Where("circuit_type = ? AND version = ? AND retired_at IS NULL", circuit, version).
		Updates(map[string]any{"active": false, "retired_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
