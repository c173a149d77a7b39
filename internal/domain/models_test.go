package domain

import (
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(PaymentSession{}).TableName():        "payment_sessions",
		(VerificationKey{}).TableName():       "verification_keys",
		(CrossChainAttestation{}).TableName(): "cross_chain_attestations",
		(Content{}).TableName():               "contents",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_UniqueIndexes(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&PaymentSession{}, &VerificationKey{}, &CrossChainAttestation{}, &Content{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for model, idx := range map[any]string{
		&PaymentSession{}:        "ux_sessions_nullifier",
		&VerificationKey{}:       "ux_vkeys_circuit_version",
		&CrossChainAttestation{}: "ux_attestations_hash",
	} {
		if !m.HasIndex(model, idx) {
			t.Fatalf("expected index %s on %T", idx, model)
		}
	}

	now := time.Now()
	n := strings.Repeat("aa", 32)
	s1 := PaymentSession{ID: "00000000-0000-0000-0000-000000000001", ContentID: "c", Amount: 1, Status: StatusConfirmed, Nullifier: &n, ExpiresAt: now}
	s2 := PaymentSession{ID: "00000000-0000-0000-0000-000000000002", ContentID: "c", Amount: 1, Status: StatusConfirmed, Nullifier: strPtr(n), ExpiresAt: now}
	if err := db.Create(&s1).Error; err != nil {
		t.Fatalf("create s1: %v", err)
	}
	if err := db.Create(&s2).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate nullifier")
	}

	// NULL nullifiers never collide.
	p1 := PaymentSession{ID: "00000000-0000-0000-0000-000000000003", ContentID: "c", Amount: 1, Status: StatusPending, ExpiresAt: now}
	p2 := PaymentSession{ID: "00000000-0000-0000-0000-000000000004", ContentID: "c", Amount: 1, Status: StatusFailed, ExpiresAt: now}
	if err := db.Create(&p1).Error; err != nil {
		t.Fatalf("create p1: %v", err)
	}
	if err := db.Create(&p2).Error; err != nil {
		t.Fatalf("create p2: %v", err)
	}

	bad := PaymentSession{ID: "00000000-0000-0000-0000-000000000005", ContentID: "c", Amount: 1, Status: "BOGUS", ExpiresAt: now}
	if err := db.Create(&bad).Error; err == nil {
		t.Fatalf("expected check constraint violation for unknown status")
	}
}

func TestSessionStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Fatalf("PENDING must not be terminal")
	}
	for _, s := range []SessionStatus{StatusConfirmed, StatusFailed, StatusExpired} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestPaymentSession_Expired(t *testing.T) {
	now := time.Now()
	s := &PaymentSession{Status: StatusPending, ExpiresAt: now}
	if !s.Expired(now) {
		t.Fatalf("session at deadline should be expired")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Fatalf("session before deadline should not be expired")
	}
	s.Status = StatusConfirmed
	if s.Expired(now.Add(time.Hour)) {
		t.Fatalf("confirmed session never reports expired")
	}
}

func TestContent_PriceFor(t *testing.T) {
	c := Content{BasePrice: 1_000_000, CredentialDiscountBps: 2500}
	if got := c.PriceFor(false); got != 1_000_000 {
		t.Fatalf("base price = %d", got)
	}
	if got := c.PriceFor(true); got != 750_000 {
		t.Fatalf("discounted price = %d; want 750000", got)
	}
	full := Content{BasePrice: 10, CredentialDiscountBps: 10000}
	if got := full.PriceFor(true); got != 0 {
		t.Fatalf("full discount = %d; want 0", got)
	}
}

func TestBasisPoints(t *testing.T) {
	if got := BasisPoints(1_000_000, 200); got != 20_000 {
		t.Fatalf("2%% of 1e6 = %d", got)
	}
	if got := BasisPoints(9_223_372_036_854_775_807, 10000); got != 9_223_372_036_854_775_807 {
		t.Fatalf("max amount at 100%% = %d", got)
	}
	if BasisPoints(-5, 100) != 0 || BasisPoints(5, 0) != 0 {
		t.Fatalf("non-positive inputs must yield 0")
	}
}
