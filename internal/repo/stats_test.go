package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// newBareDB opens an empty in-memory database without migrations.
func newBareDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestSessionStats_NoTable(t *testing.T) {
	if _, err := SessionStats(context.Background(), newBareDB(t)); err == nil {
		t.Fatalf("expected error due to missing sessions table")
	}
}

func TestSessionStats_ZeroFilled(t *testing.T) {
	db := newRepoDB(t)
	got, err := SessionStats(context.Background(), db)
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	for _, st := range []domain.SessionStatus{domain.StatusPending, domain.StatusConfirmed, domain.StatusFailed, domain.StatusExpired} {
		if n, ok := got[st]; !ok || n != 0 {
			t.Fatalf("status %s = %d (present=%v), want 0", st, n, ok)
		}
	}
}

func TestSessionStats_CountsPerStatus(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedSession(t, db, now.Add(time.Minute))
	seedSession(t, db, now.Add(time.Minute))
	stale := seedSession(t, db, now.Add(-time.Minute))
	if _, err := ExpireStale(ctx, db, now); err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}

	got, err := SessionStats(ctx, db)
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	if got[domain.StatusPending] != 2 || got[domain.StatusExpired] != 1 || got[domain.StatusConfirmed] != 0 {
		t.Fatalf("stats = %v (stale=%s)", got, stale.ID)
	}
}

func TestAttestationStats_AndPaging(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 5; i++ {
		a := &domain.CrossChainAttestation{
			ObservedHash:  fmt.Sprintf("%064x", i),
			OriginChain:   2,
			OriginAddress: fmt.Sprintf("%064x", 0xabc),
			Sequence:      uint64(i),
			Status:        domain.AttestationFailed,
			ErrorDetail:   "stale",
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if i == 4 {
			h := a.ObservedHash
			a.MessageHash = &h
			a.Status = domain.AttestationVerified
			a.ErrorDetail = ""
		}
		if err := CreateAttestation(ctx, db, a); err != nil {
			t.Fatalf("CreateAttestation %d: %v", i, err)
		}
	}

	stats, err := AttestationStats(ctx, db)
	if err != nil {
		t.Fatalf("AttestationStats: %v", err)
	}
	if stats[domain.AttestationVerified] != 1 || stats[domain.AttestationFailed] != 4 {
		t.Fatalf("stats = %v", stats)
	}

	page, total, err := ListAttestationsPage(ctx, db, domain.AttestationFailed, 0, 3)
	if err != nil {
		t.Fatalf("ListAttestationsPage: %v", err)
	}
	if total != 4 || len(page) != 3 {
		t.Fatalf("total=%d len=%d, want 4/3", total, len(page))
	}
	if page[0].Sequence != 3 || page[2].Sequence != 1 {
		t.Fatalf("expected newest first, got seq %d..%d", page[0].Sequence, page[2].Sequence)
	}

	rest, total, err := ListAttestationsPage(ctx, db, "", 3, 3)
	if err != nil {
		t.Fatalf("ListAttestationsPage all: %v", err)
	}
	if total != 5 || len(rest) != 2 {
		t.Fatalf("all: total=%d len=%d, want 5/2", total, len(rest))
	}
}
