package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/http/middleware"
	"github.com/tbourn/zk-paygate/internal/ledger"
	"github.com/tbourn/zk-paygate/internal/proof"
	"github.com/tbourn/zk-paygate/internal/proof/prooftest"
	"github.com/tbourn/zk-paygate/internal/repo"
)

const trustYAML = `
contents:
  - id: article-1
    title: First article
    base_price: 1000
    credential_discount_bps: 2500
emitters:
  - chain: 2
    address: "0xaabbccddeeff00112233445566778899aabbccdd"
guardians:
  - "0x58CC3AE5C097b213cE3c81979e1B9f9570746AA5"
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	trust := filepath.Join(dir, "trust.yaml")
	if err := os.WriteFile(trust, []byte(trustYAML), 0o600); err != nil {
		t.Fatalf("write trust: %v", err)
	}
	return config.Config{
		APIBasePath:            "/api/v1",
		DBDriver:               "sqlite",
		DBDSN:                  filepath.Join(dir, "paygate.db"),
		TrustFile:              trust,
		QuoteTTL:               time.Minute,
		AccessTTL:              time.Hour,
		PlatformFeeBps:         200,
		KeyMaster:              "0123456789abcdef0123",
		NullifierMaxFailures:   3,
		NullifierLockoutWindow: time.Minute,
		RateRPS:                100,
		RateBurst:              100,
		KV:                     config.KVConfig{Backend: "memory", MemoryEntries: 64},
		Bridge:                 config.BridgeConfig{GuardianURL: "http://127.0.0.1:1", Quorum: 1, RateLimit: 5, RateWindow: time.Minute},
		Ledger:                 config.LedgerConfig{Mode: "mock", Account: "platform"},
		OTEL:                   config.OTELConfig{ServiceName: "test"},
	}
}

func TestNew_WiresGraphAndSeedsCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if a.Bridge == nil {
		t.Fatalf("bridge verifier not wired")
	}
	if _, ok := a.Ledger.(*ledger.Mock); !ok {
		t.Fatalf("ledger = %T, want mock", a.Ledger)
	}
	c, err := repo.GetContent(ctx, a.DB, "article-1")
	if err != nil {
		t.Fatalf("seeded content: %v", err)
	}
	if c.BasePrice != 1000 || c.CredentialDiscountBps != 2500 || !c.Active {
		t.Fatalf("content = %+v", c)
	}

	q, err := a.Sessions.Quote(ctx, "article-1", true)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Price != 750 || q.PlatformFee != 15 {
		t.Fatalf("quote = %+v", q)
	}

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status/"+q.SessionID, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), string(domain.StatusPending)) {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestRouter_QuotePayStatusRevokeReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.AdminToken = "operator-secret"
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	setup := prooftest.MustNew(5)
	if _, err := a.Keys.Register(ctx, proof.CircuitSpend, "v1", setup.VerifyingKey(), true); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r := a.Router()

	n, err := rand.Int(rand.Reader, proof.ScalarModulus())
	if err != nil {
		t.Fatalf("rand: %v", err)
	}
	nullifier := fmt.Sprintf("%064x", n)
	publics := []*big.Int{big.NewInt(11), n, big.NewInt(22), big.NewInt(1000), big.NewInt(33)}
	spend := setup.MustProve(publics)

	quote := func() string {
		t.Helper()
		w := doJSON(t, r, http.MethodPost, "/api/v1/quote", map[string]any{"contentId": "article-1", "hasCredential": false})
		if w.Code != http.StatusOK {
			t.Fatalf("quote = %d %s", w.Code, w.Body.String())
		}
		var q struct {
			SessionID string `json:"sessionId"`
			Price     string `json:"price"`
		}
		decode(t, w, &q)
		if q.Price != "1000" || q.SessionID == "" {
			t.Fatalf("quote body = %s", w.Body.String())
		}
		return q.SessionID
	}
	pay := func(sessionID string) *httptest.ResponseRecorder {
		return doJSON(t, r, http.MethodPost, "/api/v1/pay", map[string]any{
			"sessionId":    sessionID,
			"nullifier":    nullifier,
			"proof":        spend,
			"publicValues": prooftest.Decimals(publics),
		})
	}

	first := quote()
	w := pay(first)
	if w.Code != http.StatusOK {
		t.Fatalf("pay = %d %s", w.Code, w.Body.String())
	}
	var paid struct {
		SessionID     string `json:"sessionId"`
		DecryptionKey string `json:"decryptionKey"`
		OnChainRef    string `json:"onChainRef"`
	}
	decode(t, w, &paid)
	if paid.SessionID != first || paid.DecryptionKey == "" || paid.OnChainRef == "" {
		t.Fatalf("pay body = %s", w.Body.String())
	}

	sess, err := repo.GetSession(ctx, a.DB, first)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != domain.StatusConfirmed || sess.VKeyVersion != "v1" {
		t.Fatalf("stored session = %+v", sess)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/status/"+first, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var view struct {
		Status    string `json:"status"`
		HasAccess bool   `json:"hasAccess"`
	}
	decode(t, w, &view)
	if view.Status != string(domain.StatusConfirmed) || !view.HasAccess {
		t.Fatalf("status body = %s", w.Body.String())
	}

	revoke := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/access/article-1/"+first, nil)
	revoke.Header.Set(middleware.HeaderAdminToken, "operator-secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, revoke)
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke = %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/api/v1/status/"+first, nil)
	decode(t, w, &view)
	if view.HasAccess {
		t.Fatalf("status after revoke = %s", w.Body.String())
	}

	w = pay(quote())
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "replay_detected") {
		t.Fatalf("replay = %d %s", w.Code, w.Body.String())
	}

	bal, err := a.Ledger.GetBalance(ctx, "article-1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Int64() != 980 {
		t.Fatalf("content balance = %s, want one settlement of 980", bal)
	}
}

func TestNew_PausedAndNoBridge(t *testing.T) {
	cfg := testConfig(t)
	cfg.PaymentsPaused = true
	cfg.Bridge.GuardianURL = ""
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if !a.Sessions.Paused() {
		t.Fatalf("sessions should start paused")
	}
	if a.Bridge != nil {
		t.Fatalf("bridge should be disabled without a guardian URL")
	}
}

func TestNew_RejectsBadBackends(t *testing.T) {
	cases := map[string]func(*config.Config){
		"kv":     func(c *config.Config) { c.KV.Backend = "etcd" },
		"ledger": func(c *config.Config) { c.Ledger.Mode = "paper" },
		"db":     func(c *config.Config) { c.DBDriver = "oracle" },
		"key":    func(c *config.Config) { c.KeyMaster = "short" },
		"trust":  func(c *config.Config) { c.TrustFile = filepath.Join(t.TempDir(), "missing.yaml") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(&cfg)
			a, err := New(context.Background(), cfg)
			if err == nil {
				_ = a.Close()
				t.Fatalf("expected error")
			}
			if a != nil {
				t.Fatalf("app must be nil on error")
			}
		})
	}
}

func TestStartWorkers_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.SettleInterval = 10 * time.Millisecond
	cfg.Verifier.ReloadInterval = 0
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := a.StartWorkers(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("workers did not stop")
	}
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
