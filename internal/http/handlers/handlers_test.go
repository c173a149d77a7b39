package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/zk-paygate/internal/access"
	"github.com/tbourn/zk-paygate/internal/bridge"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/http/middleware"
	"github.com/tbourn/zk-paygate/internal/kv"
	"github.com/tbourn/zk-paygate/internal/repo"
	"github.com/tbourn/zk-paygate/internal/services"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// ---------- stubs ----------

type stubPayments struct {
	paused   bool
	quoteErr error
	payErr   error
	status   map[string]*services.SessionView
	keys     map[string]*services.Quote
	lastPay  services.SubmitRequest
	revoked  []string
}

func (s *stubPayments) QuoteOnce(_ context.Context, clientID, key, contentID string, cred bool) (*services.Quote, bool, error) {
	if s.quoteErr != nil {
		return nil, false, s.quoteErr
	}
	if q, ok := s.keys[clientID+"/"+key]; ok && key != "" {
		return q, true, nil
	}
	price := int64(1_000_000)
	if cred {
		price = 800_000
	}
	q := &services.Quote{SessionID: uuid.NewString(), ContentID: contentID, Price: price, PlatformFee: price / 50, ExpiresAt: time.Now().Add(15 * time.Minute)}
	if key != "" {
		if s.keys == nil {
			s.keys = map[string]*services.Quote{}
		}
		s.keys[clientID+"/"+key] = q
	}
	return q, false, nil
}

func (s *stubPayments) SubmitProof(_ context.Context, req services.SubmitRequest) (*services.Payment, error) {
	s.lastPay = req
	if s.payErr != nil {
		return nil, s.payErr
	}
	return &services.Payment{SessionID: req.SessionID, ContentID: "article-1", DecryptionKey: "k3y"}, nil
}

func (s *stubPayments) Status(_ context.Context, id string) (*services.SessionView, error) {
	if v, ok := s.status[id]; ok {
		return v, nil
	}
	return nil, services.ErrSessionNotFound
}

func (s *stubPayments) RevokeAccess(_ context.Context, contentID, sessionID string) error {
	if _, ok := s.status[sessionID]; !ok {
		return services.ErrSessionNotFound
	}
	s.revoked = append(s.revoked, contentID+"/"+sessionID)
	return nil
}

func (s *stubPayments) Paused() bool     { return s.paused }
func (s *stubPayments) SetPaused(p bool) { s.paused = p }

type stubBridge struct {
	err  error
	last bridge.Request
}

func (b *stubBridge) VerifyAndProcess(_ context.Context, req bridge.Request) (*domain.PaymentSession, error) {
	b.last = req
	if b.err != nil {
		return nil, b.err
	}
	return &domain.PaymentSession{ID: "s-1", ContentID: "article-1", Status: domain.StatusConfirmed}, nil
}

type stubKeys struct {
	keys []vkeys.Key
	err  error
	log  []string
}

func (k *stubKeys) Register(_ context.Context, circuit, version string, params []byte, activate bool) (vkeys.Key, error) {
	if k.err != nil {
		return vkeys.Key{}, k.err
	}
	key := vkeys.Key{Circuit: circuit, Version: version, Hash: vkeys.HashParams(params), Active: activate}
	k.keys = append(k.keys, key)
	return key, nil
}

func (k *stubKeys) Reload(context.Context) error {
	k.log = append(k.log, "reload")
	return k.err
}

func (k *stubKeys) Activate(_ context.Context, c, v string) error {
	k.log = append(k.log, "activate "+c+"/"+v)
	return k.err
}

func (k *stubKeys) Retire(_ context.Context, c, v string) error {
	k.log = append(k.log, "retire "+c+"/"+v)
	return k.err
}

func (k *stubKeys) List() []vkeys.Key { return k.keys }

// ---------- fixtures ----------

type fixture struct {
	r        *gin.Engine
	db       *gorm.DB
	payments *stubPayments
	bridge   *stubBridge
	keys     *stubKeys
	grants   *access.Grants
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "handlers.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cache, err := kv.NewMemory(128)
	if err != nil {
		t.Fatalf("kv: %v", err)
	}
	f := &fixture{
		db:       newHandlerDB(t),
		payments: &stubPayments{status: map[string]*services.SessionView{}},
		bridge:   &stubBridge{},
		keys:     &stubKeys{},
		grants:   access.New(cache, time.Hour),
	}
	h := New(Deps{Payments: f.payments, Bridge: f.bridge, Access: f.grants, Keys: f.keys, DB: f.db})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/quote", h.Quote)
	r.POST("/pay", h.Pay)
	r.GET("/status/:sessionId", h.Status)
	r.POST("/bridge/verify", h.BridgeVerify)
	r.GET("/access/:contentId/:sessionId", h.CheckAccess)
	r.POST("/access/batch", h.CheckAccessBatch)
	r.GET("/admin/vkeys", h.ListKeys)
	r.POST("/admin/vkeys", h.RegisterKey)
	r.POST("/admin/vkeys/reload", h.ReloadKeys)
	r.POST("/admin/vkeys/:circuit/:version/activate", h.ActivateKey)
	r.POST("/admin/vkeys/:circuit/:version/retire", h.RetireKey)
	r.GET("/admin/stats", h.Stats)
	r.POST("/admin/pause", h.SetPaused)
	r.POST("/admin/access/extend", h.ExtendAccess)
	r.DELETE("/admin/access/:contentId/:sessionId", h.RevokeAccess)
	r.GET("/admin/attestations", h.ListAttestations)
	f.r = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (%s)", v, err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (%s)", w.Code, status, w.Body.String())
	}
	if got := decode[ErrorResponse](t, w); got.Code != code || got.RequestID == "" {
		t.Fatalf("envelope = %+v; want code %s", got, code)
	}
}

// ---------- payments ----------

func TestQuote_AmountsAsStringsAndIdempotency(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/quote", QuoteRequest{ContentID: "article-1"}, middleware.HeaderIdempotencyKey, "order-1")
	if w.Code != http.StatusOK {
		t.Fatalf("quote: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"price":"1000000"`) {
		t.Fatalf("price should be an integer string: %s", w.Body.String())
	}
	first := decode[QuoteResponse](t, w)

	w = f.do(t, http.MethodPost, "/quote", QuoteRequest{ContentID: "article-1"}, middleware.HeaderIdempotencyKey, "order-1")
	again := decode[QuoteResponse](t, w)
	if again.SessionID != first.SessionID || w.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("retry should replay the session: %+v vs %+v", again, first)
	}
}

func TestQuote_Errors(t *testing.T) {
	f := newFixture(t)
	expectError(t, f.do(t, http.MethodPost, "/quote", `{"contentId":"  "}`), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, f.do(t, http.MethodPost, "/quote", `not json`), http.StatusBadRequest, ErrCodeBadRequest)

	f.payments.quoteErr = services.ErrContentNotFound
	expectError(t, f.do(t, http.MethodPost, "/quote", QuoteRequest{ContentID: "nope"}), http.StatusNotFound, ErrCodeNotFound)
}

func TestPay_SuccessAndErrorMapping(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"sessionId":    "3f2a9c1e-7b4d-4c8e-9a21-0d5e6f7a8b9c",
		"nullifier":    strings.Repeat("ab", 32),
		"proof":        map[string]any{"pi_a": []string{"1", "2"}, "pi_b": [][]string{{"1", "2"}, {"3", "4"}}, "pi_c": []string{"5", "6"}},
		"publicValues": []string{"1", "2", "3", "4", "5"},
		"payer":        "0xabc",
	}

	w := f.do(t, http.MethodPost, "/pay", body)
	if w.Code != http.StatusOK {
		t.Fatalf("pay: %d %s", w.Code, w.Body.String())
	}
	if p := decode[services.Payment](t, w); p.DecryptionKey != "k3y" {
		t.Fatalf("payment = %+v", p)
	}
	if f.payments.lastPay.PayerHint != "0xabc" || len(f.payments.lastPay.Proof.PiB) != 2 {
		t.Fatalf("request not forwarded: %+v", f.payments.lastPay)
	}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrSessionNotFound, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrInvalidNullifier, http.StatusBadRequest, ErrCodeBadRequest},
		{fmt.Errorf("%w: proof rejected", domain.ErrVerificationFailed), http.StatusUnauthorized, ErrCodeInvalidProof},
		{fmt.Errorf("%w: nullifier already used", domain.ErrReplayDetected), http.StatusConflict, ErrCodeReplayDetected},
		{fmt.Errorf("%w: session is CONFIRMED", domain.ErrSessionClosed), http.StatusConflict, ErrCodeSessionClosed},
		{fmt.Errorf("%w: quote expired", domain.ErrExpired), http.StatusBadRequest, ErrCodeExpired},
		{fmt.Errorf("%w: too many failed proofs", domain.ErrRateLimited), http.StatusTooManyRequests, ErrCodeRateLimited},
		{fmt.Errorf("%w: no active key", domain.ErrConfiguration), http.StatusServiceUnavailable, ErrCodeConfiguration},
		{domain.ErrPaused, http.StatusServiceUnavailable, ErrCodePaymentsPaused},
	}
	for _, tc := range cases {
		f.payments.payErr = tc.err
		expectError(t, f.do(t, http.MethodPost, "/pay", body), tc.status, tc.code)
	}

	expectError(t, f.do(t, http.MethodPost, "/pay", `{"sessionId":"x"}`), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.payments.status["s-1"] = &services.SessionView{SessionID: "s-1", ContentID: "article-1", Status: domain.StatusConfirmed, HasAccess: true}

	w := f.do(t, http.MethodGet, "/status/s-1", nil)
	if v := decode[services.SessionView](t, w); w.Code != http.StatusOK || !v.HasAccess || v.Status != domain.StatusConfirmed {
		t.Fatalf("status: %d %+v", w.Code, v)
	}
	expectError(t, f.do(t, http.MethodGet, "/status/missing", nil), http.StatusNotFound, ErrCodeNotFound)
}

// ---------- bridge ----------

func TestBridgeVerify(t *testing.T) {
	f := newFixture(t)
	body := `{"originChain":2,"originAddress":"0xaabb","sequence":"18446744073709551615"}`

	w := f.do(t, http.MethodPost, "/bridge/verify", body, middleware.HeaderClientID, "relayer")
	if w.Code != http.StatusOK {
		t.Fatalf("bridge: %d %s", w.Code, w.Body.String())
	}
	if got := decode[BridgeVerifyResponse](t, w); got.SessionID != "s-1" || got.Status != domain.StatusConfirmed {
		t.Fatalf("response = %+v", got)
	}
	if f.bridge.last.Sequence != 18446744073709551615 || f.bridge.last.ClientID != "client:relayer" {
		t.Fatalf("request not forwarded: %+v", f.bridge.last)
	}

	if w := f.do(t, http.MethodPost, "/bridge/verify", `{"originChain":2,"originAddress":"0xaabb","sequence":7}`); w.Code != http.StatusOK {
		t.Fatalf("numeric sequence: %d", w.Code)
	}
	expectError(t, f.do(t, http.MethodPost, "/bridge/verify", `{"originChain":2,"originAddress":"0xaabb","sequence":"-1"}`), http.StatusBadRequest, ErrCodeBadRequest)

	f.bridge.err = fmt.Errorf("%w: 3 of 13 signatures", domain.ErrNotYetAttested)
	expectError(t, f.do(t, http.MethodPost, "/bridge/verify", body), http.StatusAccepted, ErrCodeNotYetAttested)
	f.bridge.err = fmt.Errorf("%w: guardian api 500", domain.ErrUpstream)
	expectError(t, f.do(t, http.MethodPost, "/bridge/verify", body), http.StatusBadGateway, ErrCodeUpstream)

	f.payments.paused = true
	expectError(t, f.do(t, http.MethodPost, "/bridge/verify", body), http.StatusServiceUnavailable, ErrCodePaymentsPaused)
}

func TestBridgeVerify_NotConfigured(t *testing.T) {
	f := newFixture(t)
	h := New(Deps{Payments: f.payments, Access: f.grants, Keys: f.keys, DB: f.db})
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/bridge/verify", h.BridgeVerify)
	f.r = r
	expectError(t, f.do(t, http.MethodPost, "/bridge/verify", `{}`), http.StatusServiceUnavailable, ErrCodeConfiguration)
}

// ---------- access ----------

func TestCheckAccess_CacheAndSessionFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.grants.Grant(ctx, "article-1", "s-cached", time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	reissued := time.Now().Add(30 * time.Minute).UTC()
	f.payments.status["s-db"] = &services.SessionView{SessionID: "s-db", ContentID: "article-1", Status: domain.StatusConfirmed, HasAccess: true, AccessExpiresAt: &reissued}
	f.payments.status["s-pending"] = &services.SessionView{SessionID: "s-pending", ContentID: "article-1", Status: domain.StatusPending}

	for path, want := range map[string]bool{
		"/access/article-1/s-cached":  true,
		"/access/article-1/s-db":      true,
		"/access/article-2/s-db":      false,
		"/access/article-1/s-pending": false,
		"/access/article-1/missing":   false,
	} {
		w := f.do(t, http.MethodGet, path, nil)
		got := decode[AccessResponse](t, w)
		if w.Code != http.StatusOK || got.HasAccess != want {
			t.Fatalf("%s: %d hasAccess=%v; want %v", path, w.Code, got.HasAccess, want)
		}
		if want && got.ExpiresAt == nil {
			t.Fatalf("%s: expiresAt missing", path)
		}
	}
}

func TestCheckAccessBatch(t *testing.T) {
	f := newFixture(t)
	if _, err := f.grants.Grant(context.Background(), "a", "s1", time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	w := f.do(t, http.MethodPost, "/access/batch", AccessBatchRequest{Items: []access.Item{{ContentID: "a", SessionID: "s1"}, {ContentID: "a", SessionID: "s2"}}})
	got := decode[AccessBatchResponse](t, w)
	if w.Code != http.StatusOK || len(got.Items) != 2 || !got.Items[0].HasAccess || got.Items[1].HasAccess {
		t.Fatalf("batch: %d %+v", w.Code, got)
	}

	items := make([]access.Item, access.MaxBatch+1)
	for i := range items {
		items[i] = access.Item{ContentID: "a", SessionID: fmt.Sprint(i)}
	}
	expectError(t, f.do(t, http.MethodPost, "/access/batch", AccessBatchRequest{Items: items}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, f.do(t, http.MethodPost, "/access/batch", `{"items":[]}`), http.StatusBadRequest, ErrCodeBadRequest)
}

// ---------- admin ----------

func TestAdminKeys(t *testing.T) {
	f := newFixture(t)
	params := json.RawMessage(`{"protocol":"groth16","curve":"bn128","nPublic":5}`)

	w := f.do(t, http.MethodPost, "/admin/vkeys", RegisterKeyRequest{Circuit: "spend", Version: "v2", Params: params, Activate: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	if k := decode[vkeys.Key](t, w); k.Hash != vkeys.HashParams(params) || !k.Active {
		t.Fatalf("key = %+v", k)
	}
	if got := decode[KeyListResponse](t, f.do(t, http.MethodGet, "/admin/vkeys", nil)); len(got.Keys) != 1 {
		t.Fatalf("list = %+v", got)
	}

	for _, p := range []string{"/admin/vkeys/reload", "/admin/vkeys/spend/v2/activate", "/admin/vkeys/spend/v1/retire"} {
		if w := f.do(t, http.MethodPost, p, nil); w.Code != http.StatusNoContent {
			t.Fatalf("%s: %d", p, w.Code)
		}
	}
	if want := []string{"reload", "activate spend/v2", "retire spend/v1"}; strings.Join(f.keys.log, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v", f.keys.log)
	}

	f.keys.err = vkeys.ErrExists
	expectError(t, f.do(t, http.MethodPost, "/admin/vkeys", RegisterKeyRequest{Circuit: "spend", Version: "v2", Params: params}), http.StatusConflict, ErrCodeKeyExists)
	f.keys.err = fmt.Errorf("%w: key spend/v9", domain.ErrNotFound)
	expectError(t, f.do(t, http.MethodPost, "/admin/vkeys/spend/v9/activate", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestAdminStatsPauseAndExtend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, st := range []domain.SessionStatus{domain.StatusPending, domain.StatusConfirmed, domain.StatusConfirmed} {
		s := &domain.PaymentSession{ID: uuid.NewString(), ContentID: "article-1", Amount: 1, Status: st, Source: domain.SourceDirect, ExpiresAt: time.Now().Add(time.Hour)}
		if err := repo.CreateSession(ctx, f.db, s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := f.do(t, http.MethodPost, "/admin/pause", `{"paused":true}`)
	if w.Code != http.StatusOK || !f.payments.paused {
		t.Fatalf("pause: %d paused=%v", w.Code, f.payments.paused)
	}
	expectError(t, f.do(t, http.MethodPost, "/admin/pause", `{}`), http.StatusBadRequest, ErrCodeBadRequest)

	stats := decode[StatsResponse](t, f.do(t, http.MethodGet, "/admin/stats", nil))
	if stats.Sessions[domain.StatusConfirmed] != 2 || stats.Sessions[domain.StatusPending] != 1 || !stats.Paused {
		t.Fatalf("stats = %+v", stats)
	}

	w = f.do(t, http.MethodPost, "/admin/access/extend", ExtendAccessRequest{ContentID: "a", SessionID: "s", Seconds: 3600})
	got := decode[AccessResponse](t, w)
	if w.Code != http.StatusOK || got.ExpiresAt == nil || time.Until(*got.ExpiresAt) < 59*time.Minute {
		t.Fatalf("extend: %d %+v", w.Code, got)
	}
	expectError(t, f.do(t, http.MethodPost, "/admin/access/extend", ExtendAccessRequest{ContentID: "a", SessionID: "s"}), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestAdminRevokeAccess(t *testing.T) {
	f := newFixture(t)
	f.payments.status["s-1"] = &services.SessionView{SessionID: "s-1", Status: domain.StatusConfirmed}

	w := f.do(t, http.MethodDelete, "/admin/access/article-1/s-1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke = %d (%s)", w.Code, w.Body.String())
	}
	if len(f.payments.revoked) != 1 || f.payments.revoked[0] != "article-1/s-1" {
		t.Fatalf("revoked = %v", f.payments.revoked)
	}
	expectError(t, f.do(t, http.MethodDelete, "/admin/access/article-1/missing", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestAdminListAttestations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a := &domain.CrossChainAttestation{
			OriginChain:   2,
			OriginAddress: strings.Repeat("0", 64),
			Sequence:      uint64(i),
			Status:        domain.AttestationFailed,
			CreatedAt:     time.Now().Add(time.Duration(i) * time.Second),
		}
		if i == 4 {
			h := fmt.Sprintf("%064x", i)
			a.MessageHash = &h
			a.Status = domain.AttestationVerified
		}
		if err := repo.CreateAttestation(ctx, f.db, a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got := decode[AttestationListResponse](t, f.do(t, http.MethodGet, "/admin/attestations?status=failed&page=2&page_size=3", nil))
	if got.Pagination.Total != 4 || got.Pagination.TotalPages != 2 || got.Pagination.HasNext || len(got.Attestations) != 1 {
		t.Fatalf("page = %+v", got.Pagination)
	}
	got = decode[AttestationListResponse](t, f.do(t, http.MethodGet, "/admin/attestations", nil))
	if got.Pagination.Total != 5 || got.Attestations[0].Sequence != 4 {
		t.Fatalf("newest first expected: %+v", got.Attestations)
	}
	expectError(t, f.do(t, http.MethodGet, "/admin/attestations?status=bogus", nil), http.StatusBadRequest, ErrCodeBadRequest)
}
