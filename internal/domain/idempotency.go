package domain

import "time"

// Idempotency records the session a keyed request produced, scoped by
// (client_id, scope, key). A retried quote with the same key returns the
// same session instead of opening a new one.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	ClientID  string    `gorm:"type:varchar(96);not null;uniqueIndex:ux_idem_client_scope_key,priority:1"`
	Scope     string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_idem_client_scope_key,priority:2"`
	Key       string    `gorm:"column:idem_key;type:varchar(200);not null;uniqueIndex:ux_idem_client_scope_key,priority:3"`
	SessionID string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Live reports whether the record can still be replayed at now.
func (i Idempotency) Live(now time.Time) bool { return now.Before(i.ExpiresAt) }
