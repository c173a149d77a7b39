// Package handlers exposes the payment API over HTTP.
//
// Handlers are transport-thin: they bind and validate input, call the
// services and translate results (or errors, via failErr) into responses.
// Every dependency is an interface so tests can stub it.
package handlers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/access"
	"github.com/tbourn/zk-paygate/internal/bridge"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/services"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// PaymentService is the session state machine; *services.SessionService
// satisfies it.
type PaymentService interface {
	QuoteOnce(ctx context.Context, clientID, key, contentID string, hasCredential bool) (*services.Quote, bool, error)
	SubmitProof(ctx context.Context, req services.SubmitRequest) (*services.Payment, error)
	Status(ctx context.Context, sessionID string) (*services.SessionView, error)
	RevokeAccess(ctx context.Context, contentID, sessionID string) error
	Paused() bool
	SetPaused(paused bool)
}

// BridgeService verifies cross-chain payments; *bridge.Verifier satisfies it.
type BridgeService interface {
	VerifyAndProcess(ctx context.Context, req bridge.Request) (*domain.PaymentSession, error)
}

// AccessService reads and extends access grants; *access.Grants satisfies it.
type AccessService interface {
	Expiry(ctx context.Context, contentID, sessionID string) (time.Time, bool, error)
	HasBatch(ctx context.Context, items []access.Item) ([]access.Status, error)
	Extend(ctx context.Context, contentID, sessionID string, d time.Duration) (time.Time, error)
}

// KeyRegistry manages verification keys; *vkeys.Store satisfies it.
type KeyRegistry interface {
	Register(ctx context.Context, circuit, version string, params []byte, activate bool) (vkeys.Key, error)
	Reload(ctx context.Context) error
	Activate(ctx context.Context, circuit, version string) error
	Retire(ctx context.Context, circuit, version string) error
	List() []vkeys.Key
}

// Handlers groups the public and admin endpoints.
type Handlers struct {
	payments PaymentService
	bridge   BridgeService
	access   AccessService
	keys     KeyRegistry
	db       *gorm.DB // admin stats and listings
}

// Deps lists what New needs. Bridge may be nil when no guardian source is
// configured; the bridge endpoint then answers 503.
type Deps struct {
	Payments PaymentService
	Bridge   BridgeService
	Access   AccessService
	Keys     KeyRegistry
	DB       *gorm.DB
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		payments: d.Payments,
		bridge:   d.Bridge,
		access:   d.Access,
		keys:     d.Keys,
		db:       d.DB,
	}
}
