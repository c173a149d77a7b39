package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, mutate func(*http.Request)) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-123")
		c.Next()
	}, nil)

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" ||
		h.Get("Content-Security-Policy") == "" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("optional headers set without being enabled: %#v", h)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("expose header = %q", got)
	}
}

func TestSecurityHeaders_ExposeHeaderMerging(t *testing.T) {
	cases := []struct {
		existing, want string
	}{
		{"Foo", "Foo, X-Request-ID"},
		{"X-Request-ID, Foo", "X-Request-ID, Foo"},
	}
	for _, tc := range cases {
		h := serveSecurity(t, SecurityOptions{}, func(c *gin.Context) {
			c.Header("X-Request-ID", "rid")
			c.Header("Access-Control-Expose-Headers", tc.existing)
			c.Next()
		}, nil)
		if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
			t.Fatalf("existing %q: got %q want %q", tc.existing, got, tc.want)
		}
	}
}

func TestSecurityHeaders_PolicyNoStoreAndHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, NoStore: true, EnablePolicy: true}

	h := serveSecurity(t, opt, nil, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}

	h = serveSecurity(t, opt, nil, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") })
	if h.Get("Strict-Transport-Security") == "" {
		t.Fatal("X-Forwarded-Proto=https should enable HSTS")
	}

	h = serveSecurity(t, opt, nil, nil)
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatal("plain HTTP must not get HSTS")
	}
}

func TestNoStore_PerRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secret", NoStore(), func(c *gin.Context) { c.String(http.StatusOK, "k") })
	r.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "p") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secret", nil))
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("secret route should be no-store: %#v", w.Header())
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public", nil))
	if w.Header().Get("Cache-Control") != "" {
		t.Fatalf("public route should be cacheable: %#v", w.Header())
	}
}
