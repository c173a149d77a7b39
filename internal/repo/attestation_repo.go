package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// CreateAttestation inserts an attestation row. A VERIFIED row whose
// MessageHash was already recorded yields ErrDuplicate.
func CreateAttestation(ctx context.Context, db *gorm.DB, a *domain.CrossChainAttestation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.ErrorDetail = truncate(a.ErrorDetail, 255)
	return translate(db.WithContext(ctx).Create(a).Error)
}

// GetVerifiedAttestation returns the VERIFIED attestation for a message
// hash, or ErrNotFound.
func GetVerifiedAttestation(ctx context.Context, db *gorm.DB, hash string) (*domain.CrossChainAttestation, error) {
	var a domain.CrossChainAttestation
	if err := db.WithContext(ctx).Where("message_hash = ?", hash).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAttestationsByObservedHash counts every recorded attempt (verified or
// failed) for a digest.
func CountAttestationsByObservedHash(ctx context.Context, db *gorm.DB, hash string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CrossChainAttestation{}).
		Where("observed_hash = ?", hash).
		Count(&n).Error
	return n, err
}

// ListAttestationsPage returns attestations newest first, optionally
// filtered by status, with the total matching count.
func ListAttestationsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.CrossChainAttestation, int64, error) {
	q := db.WithContext(ctx).Model(&domain.CrossChainAttestation{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.CrossChainAttestation
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
