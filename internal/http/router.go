// Package httpapi wires the HTTP transport (Gin) to the payment services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// CORS, security headers, idempotency and edge rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/zk-paygate/docs"
	"github.com/tbourn/zk-paygate/internal/access"
	"github.com/tbourn/zk-paygate/internal/bridge"
	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/http/handlers"
	"github.com/tbourn/zk-paygate/internal/http/middleware"
	"github.com/tbourn/zk-paygate/internal/services"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// Services are the application components the routes are bound to. Bridge
// may be nil when no guardian source is configured.
type Services struct {
	Sessions *services.SessionService
	Bridge   *bridge.Verifier
	Access   *access.Grants
	Keys     *vkeys.Store
	DB       *gorm.DB
}

var corsAllowHeaders = []string{
	"Origin", "Content-Type", "Accept",
	middleware.HeaderIdempotencyKey,
	middleware.HeaderClientID,
	middleware.HeaderAdminToken,
}

var corsExposeHeaders = []string{"X-Request-ID", "Content-Length", "Retry-After", "Idempotent-Replayed"}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with identifier scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per client, bypass on replay)
//  9. CORS, security headers and compression
func RegisterRoutes(r *gin.Engine, s Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiBase := cfg.APIBasePath
	quoteRoute := strings.TrimSuffix(apiBase, "/") + "/quote"

	// 7) Idempotency validation (before rate limiting). Only quotes are
	// keyed today; other routes see every key as fresh.
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, clientID, route, key string, _ time.Time) (bool, error) {
			if route != quoteRoute || s.Sessions == nil {
				return false, nil
			}
			return s.Sessions.HasQuote(ctx, clientID, key)
		},
	))

	// 8) Token-bucket rate limiter per client
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, nil)
	r.Use(rl.Handler())

	// 9) CORS posture (allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// A nil *bridge.Verifier must stay a nil interface.
	var bridgeSvc handlers.BridgeService
	if s.Bridge != nil {
		bridgeSvc = s.Bridge
	}
	h := handlers.New(handlers.Deps{
		Payments: s.Sessions,
		Bridge:   bridgeSvc,
		Access:   s.Access,
		Keys:     s.Keys,
		DB:       s.DB,
	})

	api := groupWithPrefix(r, apiBase)
	{
		// Payments
		api.POST("/quote", h.Quote)
		api.POST("/pay", middleware.NoStore(), h.Pay)
		api.GET("/status/:sessionId", h.Status)

		// Bridge
		api.POST("/bridge/verify", h.BridgeVerify)

		// Access
		api.GET("/access/:contentId/:sessionId", h.CheckAccess)
		api.POST("/access/batch", h.CheckAccessBatch)

		// Operator
		admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminToken))
		{
			admin.GET("/vkeys", h.ListKeys)
			admin.POST("/vkeys", h.RegisterKey)
			admin.POST("/vkeys/reload", h.ReloadKeys)
			admin.POST("/vkeys/:circuit/:version/activate", h.ActivateKey)
			admin.POST("/vkeys/:circuit/:version/retire", h.RetireKey)
			admin.GET("/stats", h.Stats)
			admin.POST("/pause", h.SetPaused)
			admin.POST("/access/extend", h.ExtendAccess)
			admin.DELETE("/access/:contentId/:sessionId", h.RevokeAccess)
			admin.GET("/attestations", h.ListAttestations)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
