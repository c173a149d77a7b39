// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PaymentSession model.
//
// Every state transition is a compare-and-set UPDATE guarded by
// status = 'PENDING', so concurrent writers cannot both move a session out
// of PENDING. Nullifier uniqueness is enforced by ux_sessions_nullifier;
// a violation surfaces as ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// CreateSession inserts a new session row. The caller sets ID and fields.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.PaymentSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return translate(db.WithContext(ctx).Create(s).Error)
}

// GetSession fetches a session by ID, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.PaymentSession, error) {
	var s domain.PaymentSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Confirmation carries the fields written when a session is confirmed.
type Confirmation struct {
	Nullifier     string
	OnChainRef    string
	DecryptionKey string
	VKeyVersion   string
	ProofPayload  string
	PayerHint     *string
	Source        string     // empty keeps the row's source
	SettledAt     *time.Time // set when finality is already known
}

// ConfirmSession moves a PENDING, unexpired session to CONFIRMED and
// records the nullifier in the same statement. It returns ErrDuplicate if
// the nullifier is already bound to another session and ErrConflict if the
// row was not PENDING or already past its deadline.
func ConfirmSession(ctx context.Context, db *gorm.DB, id string, c Confirmation, now time.Time) error {
	updates := map[string]any{
		"status":         domain.StatusConfirmed,
		"nullifier":      c.Nullifier,
		"decryption_key": c.DecryptionKey,
		"vkey_version":   c.VKeyVersion,
		"proof_payload":  c.ProofPayload,
		"confirmed_at":   now,
		"updated_at":     now,
	}
	if c.OnChainRef != "" {
		updates["on_chain_ref"] = c.OnChainRef
	}
	if c.PayerHint != nil {
		updates["payer_hint"] = *c.PayerHint
	}
	if c.Source != "" {
		updates["source"] = c.Source
	}
	if c.SettledAt != nil {
		updates["settled_at"] = *c.SettledAt
	}
	res := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, domain.StatusPending, now).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// TransitionSession moves a PENDING session to a terminal status (FAILED
// or EXPIRED) with an optional reason. ErrConflict when it was not PENDING.
func TransitionSession(ctx context.Context, db *gorm.DB, id string, to domain.SessionStatus, reason string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":         to,
			"failure_reason": truncate(reason, 255),
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ExpireStale marks every PENDING session whose deadline passed as EXPIRED
// and returns the number of rows changed.
func ExpireStale(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("status = ? AND expires_at <= ?", domain.StatusPending, now).
		Updates(map[string]any{
			"status":         domain.StatusExpired,
			"failure_reason": "quote expired",
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

// NullifierUsed reports whether any session already carries the nullifier.
func NullifierUsed(ctx context.Context, db *gorm.DB, nullifier string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("nullifier = ?", nullifier).
		Count(&n).Error
	return n > 0, err
}

// ListUnsettled returns confirmed sessions with a ledger reference that
// have not been marked settled, oldest first.
func ListUnsettled(ctx context.Context, db *gorm.DB, limit int) ([]domain.PaymentSession, error) {
	var out []domain.PaymentSession
	q := db.WithContext(ctx).
		Where("status = ? AND on_chain_ref IS NOT NULL AND settled_at IS NULL", domain.StatusConfirmed).
		Order("confirmed_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListUnsubmitted returns confirmed sessions the ledger has not accepted
// yet: no reference and not settled elsewhere, oldest first.
func ListUnsubmitted(ctx context.Context, db *gorm.DB, limit int) ([]domain.PaymentSession, error) {
	var out []domain.PaymentSession
	q := db.WithContext(ctx).
		Where("status = ? AND on_chain_ref IS NULL AND settled_at IS NULL", domain.StatusConfirmed).
		Order("confirmed_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// RecordSubmission stores the ledger reference of a confirmed session.
// ErrConflict when the session is not CONFIRMED or already has one.
func RecordSubmission(ctx context.Context, db *gorm.DB, id, ref string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("id = ? AND status = ? AND on_chain_ref IS NULL", id, domain.StatusConfirmed).
		Updates(map[string]any{"on_chain_ref": ref, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkAccessRevoked stamps AccessRevokedAt on a confirmed session. It is
// a no-op for a session already revoked and ErrNotFound when no confirmed
// session has that id and content.
func MarkAccessRevoked(ctx context.Context, db *gorm.DB, id, contentID string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("id = ? AND content_id = ? AND status = ?", id, contentID, domain.StatusConfirmed).
		Updates(map[string]any{
			"access_revoked_at": gorm.Expr("COALESCE(access_revoked_at, ?)", now),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSettled stamps SettledAt once the ledger reports finality.
func MarkSettled(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentSession{}).
		Where("id = ? AND settled_at IS NULL", id).
		Updates(map[string]any{"settled_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
