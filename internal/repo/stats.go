// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the
// admin stats endpoint and the metrics gauges.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// SessionStats returns the number of sessions per status. Statuses with no
// rows are present with a zero count.
func SessionStats(ctx context.Context, db *gorm.DB) (map[domain.SessionStatus]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[domain.SessionStatus]int64{
		domain.StatusPending:   0,
		domain.StatusConfirmed: 0,
		domain.StatusFailed:    0,
		domain.StatusExpired:   0,
	}
	for _, r := range rows {
		out[domain.SessionStatus(r.Status)] = r.N
	}
	return out, nil
}

// AttestationStats returns the number of attestation rows per status.
func AttestationStats(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.CrossChainAttestation{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int64{domain.AttestationVerified: 0, domain.AttestationFailed: 0}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
