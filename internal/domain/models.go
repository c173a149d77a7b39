// Package domain defines the persistence models for payment sessions,
// verification keys, cross-chain attestations and the content catalog.
// These types are mapped with GORM and shared by the repository, service
// and transport layers.
package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a PaymentSession.
type SessionStatus string

// Session states. CONFIRMED, FAILED and EXPIRED are terminal.
const (
	StatusPending   SessionStatus = "PENDING"
	StatusConfirmed SessionStatus = "CONFIRMED"
	StatusFailed    SessionStatus = "FAILED"
	StatusExpired   SessionStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool { return s != StatusPending }

// Session sources.
const (
	SourceDirect = "direct"
	SourceBridge = "bridge"
)

// PaymentSession is one purchase attempt for one content item. Rows are
// never deleted; terminal rows are kept for audit.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Nullifier: 64-char hex, globally unique once set. NULL until the
//     session is confirmed, so failed attempts never consume it.
//   - OnChainRef: settlement reference returned by the ledger client.
//   - DecryptionKey: opaque hand-off blob released on confirmation.
//   - ExpiresAt: quote deadline; a PENDING row past it is EXPIRED.
//   - OnChainRef stays NULL on a CONFIRMED direct session until the ledger
//     accepts the submission; the reconciler retries those.
type PaymentSession struct {
	ID            string        `json:"id"              gorm:"type:char(36);primaryKey"`
	ContentID     string        `json:"content_id"      gorm:"type:varchar(32);not null;index:idx_sessions_content"`
	Amount        int64         `json:"amount"          gorm:"not null"`
	PlatformFee   int64         `json:"platform_fee"    gorm:"not null;default:0"`
	Credential    bool          `json:"credential"      gorm:"not null;default:false"`
	PayerHint     *string       `json:"payer_hint,omitempty" gorm:"type:varchar(66)"`
	Nullifier     *string       `json:"nullifier,omitempty"  gorm:"type:char(64);uniqueIndex:ux_sessions_nullifier"`
	OnChainRef    *string       `json:"on_chain_ref,omitempty" gorm:"type:varchar(128)"`
	Status        SessionStatus `json:"status"          gorm:"type:varchar(16);not null;index:idx_sessions_status_expiry,priority:1;check:status IN ('PENDING','CONFIRMED','FAILED','EXPIRED')"`
	Source        string        `json:"source"          gorm:"type:varchar(16);not null;default:'direct'"`
	VKeyVersion   string        `json:"vkey_version,omitempty" gorm:"column:vkey_version;type:varchar(16)"`
	ProofPayload  string        `json:"-"               gorm:"type:text"`
	DecryptionKey string        `json:"-"               gorm:"type:varchar(128)"`
	FailureReason string        `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`
	ExpiresAt     time.Time     `json:"expires_at"      gorm:"not null;index:idx_sessions_status_expiry,priority:2"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
	SettledAt     *time.Time    `json:"settled_at,omitempty"`

	// AccessRevokedAt stops Status from re-issuing a grant an operator removed.
	AccessRevokedAt *time.Time `json:"access_revoked_at,omitempty"`
}

// TableName returns the database table name for PaymentSession.
func (PaymentSession) TableName() string { return "payment_sessions" }

// Expired reports whether a PENDING session is past its deadline at now.
func (s *PaymentSession) Expired(now time.Time) bool {
	return s.Status == StatusPending && !now.Before(s.ExpiresAt)
}

// VerificationKey holds the public parameters for one (circuit, version).
// At most one version per circuit is active; retired versions stay in the
// table but can no longer verify.
type VerificationKey struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	CircuitType string     `json:"circuit_type" gorm:"type:varchar(32);not null;uniqueIndex:ux_vkeys_circuit_version,priority:1"`
	Version     string     `json:"version"      gorm:"type:varchar(16);not null;uniqueIndex:ux_vkeys_circuit_version,priority:2"`
	Params      []byte     `json:"-"            gorm:"not null"`
	ParamsHash  string     `json:"params_hash"  gorm:"type:char(64);not null"`
	Active      bool       `json:"active"       gorm:"not null;default:false;index"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for VerificationKey.
func (VerificationKey) TableName() string { return "verification_keys" }

// Attestation states.
const (
	AttestationVerified = "VERIFIED"
	AttestationFailed   = "FAILED"
)

// CrossChainAttestation records every processed bridge message. MessageHash
// is set only on VERIFIED rows and is unique; ObservedHash keeps the digest
// of failed attempts for audit without blocking a later valid retry.
type CrossChainAttestation struct {
	ID               string    `json:"id"               gorm:"type:char(36);primaryKey"`
	MessageHash      *string   `json:"message_hash,omitempty" gorm:"type:char(64);uniqueIndex:ux_attestations_hash"`
	ObservedHash     string    `json:"observed_hash,omitempty" gorm:"type:varchar(64);index:idx_attestations_observed"`
	OriginChain      uint16    `json:"origin_chain"     gorm:"not null"`
	OriginAddress    string    `json:"origin_address"   gorm:"type:char(64);not null"`
	Sequence         uint64    `json:"sequence"         gorm:"not null"`
	ContentID        string    `json:"content_id,omitempty" gorm:"type:varchar(32)"`
	SessionID        string    `json:"session_id,omitempty" gorm:"type:char(36);index"`
	Payer            string    `json:"payer,omitempty"  gorm:"type:varchar(64)"`
	Amount           int64     `json:"amount"`
	PayloadTimestamp int64     `json:"payload_timestamp"`
	SignerCount      int       `json:"signer_count"`
	Status           string    `json:"status"           gorm:"type:varchar(16);not null;check:status IN ('VERIFIED','FAILED')"`
	ErrorDetail      string    `json:"error_detail,omitempty" gorm:"type:varchar(255)"`
	ClientID         string    `json:"client_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the database table name for CrossChainAttestation.
func (CrossChainAttestation) TableName() string { return "cross_chain_attestations" }

// Content is a purchasable item from the catalog. Prices are in the
// smallest currency unit.
type Content struct {
	ID                    string    `json:"id"        gorm:"type:varchar(32);primaryKey"`
	Title                 string    `json:"title"     gorm:"type:varchar(255)"`
	BasePrice             int64     `json:"base_price" gorm:"not null"`
	CredentialDiscountBps int       `json:"credential_discount_bps" gorm:"not null;default:0"`
	Active                bool      `json:"active"    gorm:"not null"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName returns the database table name for Content.
func (Content) TableName() string { return "contents" }

// PriceFor returns the amount due. Holders of a valid credential get the
// configured discount; the result never underflows below zero.
func (c Content) PriceFor(hasCredential bool) int64 {
	if !hasCredential || c.CredentialDiscountBps <= 0 {
		return c.BasePrice
	}
	discount := BasisPoints(c.BasePrice, c.CredentialDiscountBps)
	if discount >= c.BasePrice {
		return 0
	}
	return c.BasePrice - discount
}

// BasisPoints returns amount*bps/10000 without intermediate overflow for
// realistic amounts.
func BasisPoints(amount int64, bps int) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount/10000)*int64(bps) + (amount%10000)*int64(bps)/10000
}

// BridgedPayment is a payment proven by a verified cross-chain message,
// handed to the session layer to confirm.
type BridgedPayment struct {
	MessageHash string
	OriginChain uint16
	ContentID   string
	SessionID   string
	Nullifier   string // 64 lowercase hex
	Payer       string // 64 lowercase hex
	Amount      int64
	Timestamp   time.Time
}
