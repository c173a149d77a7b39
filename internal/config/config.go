// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, storage, the proof verifier, the cross-chain bridge
// verifier, the ledger client and observability. Static trust material
// (content catalog, whitelisted emitters, guardian set) lives in a YAML
// trust file, see trust.go.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "zk-paygate")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// KVConfig selects the key-value backend used by caches, grants and counters.
type KVConfig struct {
	Backend       string // memory|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MemoryEntries int // bound for the in-process LRU
}

// VerifierConfig tunes the proof verifier.
type VerifierConfig struct {
	Concurrency     int           // max concurrent pairing checks
	CacheSuccessTTL time.Duration // how long a valid result is cached
	CacheFailureTTL time.Duration // how long an invalid result is cached
	ReloadInterval  time.Duration // verification-key snapshot refresh
}

// BridgeConfig tunes the cross-chain attestation verifier.
type BridgeConfig struct {
	GuardianURL  string        // base URL of the guardian API serving signed messages
	FetchTimeout time.Duration // per-fetch deadline
	MaxAge       time.Duration // freshness window for payload timestamps
	FutureSkew   time.Duration // tolerated clock skew for future timestamps
	Quorum       int           // minimum distinct guardian signatures
	RateLimit    int           // requests per client per window
	RateWindow   time.Duration
}

// LedgerConfig selects and configures the settlement ledger client.
type LedgerConfig struct {
	Mode    string // mock|rpc
	RPCURL  string
	Account string // platform settlement account (hex address)
}

// EventsConfig configures settlement event publishing.
type EventsConfig struct {
	AMQPURL  string // empty disables AMQP and falls back to log publishing
	Exchange string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver  string // sqlite|mysql|postgres
	DBDSN     string // path for sqlite, DSN otherwise
	TrustFile string // YAML trust file; empty means no catalog

	// Payments
	QuoteTTL       time.Duration // lifetime of a PENDING session
	PlatformFeeBps int           // fee in basis points, <= 1000
	AccessTTL      time.Duration // lifetime of an access grant
	PaymentsPaused bool          // reject /pay and /bridge/verify
	AdminToken     string        // X-Admin-Token for admin routes; empty disables them
	KeyMaster      string        // secret for decryption-key derivation

	// Replay protection
	NullifierMaxFailures   int
	NullifierLockoutWindow time.Duration

	// Edge rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Workers
	SweepInterval  time.Duration
	SettleInterval time.Duration
	SettleWorkers  int

	KV       KVConfig
	Verifier VerifierConfig
	Bridge   BridgeConfig
	Ledger   LedgerConfig
	Events   EventsConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:  strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:     getenv("DB_DSN", "paygate.db"),
		TrustFile: getenv("TRUST_FILE", ""),

		// Payments
		QuoteTTL:       getdur("QUOTE_TTL", 15*time.Minute),
		PlatformFeeBps: getint("PLATFORM_FEE_BPS", 200),
		AccessTTL:      getdur("ACCESS_TTL", 24*time.Hour),
		PaymentsPaused: getbool("PAYMENTS_PAUSED", false),
		AdminToken:     getenv("ADMIN_TOKEN", ""),
		KeyMaster:      getenv("KEY_MASTER_SECRET", ""),

		NullifierMaxFailures:   getint("NULLIFIER_MAX_FAILURES", 5),
		NullifierLockoutWindow: getdur("NULLIFIER_LOCKOUT_WINDOW", 15*time.Minute),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Workers
		SweepInterval:  getdur("SWEEP_INTERVAL", time.Minute),
		SettleInterval: getdur("SETTLE_INTERVAL", 30*time.Second),
		SettleWorkers:  getint("SETTLE_WORKERS", 4),

		KV: KVConfig{
			Backend:       strings.ToLower(getenv("KV_BACKEND", "memory")),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			MemoryEntries: getint("KV_MEMORY_ENTRIES", 100_000),
		},
		Verifier: VerifierConfig{
			Concurrency:     getint("VERIFY_CONCURRENCY", 0),
			CacheSuccessTTL: getdur("PROOF_CACHE_SUCCESS_TTL", time.Hour),
			CacheFailureTTL: getdur("PROOF_CACHE_FAILURE_TTL", 5*time.Minute),
			ReloadInterval:  getdur("VKEY_RELOAD_INTERVAL", time.Minute),
		},
		Bridge: BridgeConfig{
			GuardianURL:  getenv("BRIDGE_GUARDIAN_URL", "http://localhost:7071"),
			FetchTimeout: getdur("BRIDGE_FETCH_TIMEOUT", 5*time.Second),
			MaxAge:       getdur("BRIDGE_MAX_AGE", time.Hour),
			FutureSkew:   getdur("BRIDGE_FUTURE_SKEW", 5*time.Minute),
			Quorum:       getint("GUARDIAN_QUORUM", 13),
			RateLimit:    getint("BRIDGE_RATE_LIMIT", 10),
			RateWindow:   getdur("BRIDGE_RATE_WINDOW", time.Minute),
		},
		Ledger: LedgerConfig{
			Mode:    strings.ToLower(getenv("LEDGER_MODE", "mock")),
			RPCURL:  getenv("LEDGER_RPC_URL", ""),
			Account: getenv("LEDGER_ACCOUNT", ""),
		},
		Events: EventsConfig{
			AMQPURL:  getenv("AMQP_URL", ""),
			Exchange: getenv("AMQP_EXCHANGE", "paygate.events"),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "zk-paygate"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "sqlite3" {
		cfg.DBDriver = "sqlite"
	}
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, mysql, postgres")
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if cfg.QuoteTTL <= 0 {
		return cfg, errors.New("QUOTE_TTL must be > 0")
	}
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > 1000 {
		return cfg, errors.New("PLATFORM_FEE_BPS must be between 0 and 1000")
	}
	if cfg.AccessTTL <= 0 {
		return cfg, errors.New("ACCESS_TTL must be > 0")
	}
	if cfg.NullifierMaxFailures < 1 || cfg.NullifierLockoutWindow <= 0 {
		return cfg, errors.New("NULLIFIER_MAX_FAILURES must be >= 1 and NULLIFIER_LOCKOUT_WINDOW > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.SweepInterval <= 0 || cfg.SettleInterval <= 0 {
		return cfg, errors.New("worker intervals must be positive durations")
	}
	if cfg.SettleWorkers < 1 {
		return cfg, errors.New("SETTLE_WORKERS must be >= 1")
	}
	switch cfg.KV.Backend {
	case "memory", "redis":
	default:
		return cfg, errors.New("KV_BACKEND must be one of: memory, redis")
	}
	if cfg.KV.MemoryEntries < 1 {
		return cfg, errors.New("KV_MEMORY_ENTRIES must be >= 1")
	}
	if cfg.Verifier.Concurrency < 0 {
		return cfg, errors.New("VERIFY_CONCURRENCY must be >= 0")
	}
	if cfg.Verifier.CacheSuccessTTL <= 0 || cfg.Verifier.CacheFailureTTL <= 0 {
		return cfg, errors.New("proof cache TTLs must be > 0")
	}
	if cfg.Verifier.ReloadInterval <= 0 {
		return cfg, errors.New("VKEY_RELOAD_INTERVAL must be > 0")
	}
	if cfg.Bridge.Quorum < 1 {
		return cfg, errors.New("GUARDIAN_QUORUM must be >= 1")
	}
	if cfg.Bridge.FetchTimeout <= 0 || cfg.Bridge.MaxAge <= 0 || cfg.Bridge.FutureSkew < 0 {
		return cfg, errors.New("bridge durations must be positive")
	}
	if cfg.Bridge.RateLimit < 1 || cfg.Bridge.RateWindow <= 0 {
		return cfg, errors.New("BRIDGE_RATE_LIMIT must be >= 1 and BRIDGE_RATE_WINDOW > 0")
	}
	switch cfg.Ledger.Mode {
	case "mock":
	case "rpc":
		if strings.TrimSpace(cfg.Ledger.RPCURL) == "" {
			return cfg, errors.New("LEDGER_RPC_URL is required when LEDGER_MODE=rpc")
		}
	default:
		return cfg, errors.New("LEDGER_MODE must be one of: mock, rpc")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
