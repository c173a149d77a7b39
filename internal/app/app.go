// Package app assembles the service graph from a Config: storage, the
// key-value layer, verification keys, the proof and bridge verifiers, the
// ledger and event clients, and the session service that ties them together.
// The CLI commands share it so serve, migrate and the admin subcommands see
// the same wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/access"
	"github.com/tbourn/zk-paygate/internal/bridge"
	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/events"
	httpapi "github.com/tbourn/zk-paygate/internal/http"
	"github.com/tbourn/zk-paygate/internal/keys"
	"github.com/tbourn/zk-paygate/internal/kv"
	"github.com/tbourn/zk-paygate/internal/ledger"
	"github.com/tbourn/zk-paygate/internal/proof"
	"github.com/tbourn/zk-paygate/internal/ratelimit"
	"github.com/tbourn/zk-paygate/internal/repo"
	"github.com/tbourn/zk-paygate/internal/services"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// App is the wired service graph.
type App struct {
	Config config.Config
	Trust  config.Trust
	DB     *gorm.DB
	KV     kv.Store
	Keys   *vkeys.Store
	Ledger ledger.Client
	Events events.Publisher

	Verifier   *proof.Verifier
	Grants     *access.Grants
	Sessions   *services.SessionService
	Bridge     *bridge.Verifier // nil without a guardian URL
	Reconciler *services.Reconciler

	closers []func() error
}

// OpenDB opens the configured database and migrates the schema.
func OpenDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// NewKeyStore returns a key store that rejects parameters the Groth16
// primitive cannot parse.
func NewKeyStore(db *gorm.DB, prim *proof.Groth16) *vkeys.Store {
	s := vkeys.New(db)
	s.Validate = prim.ParseKey
	return s
}

// Seed writes the trust file's catalog and verification keys.
func Seed(ctx context.Context, db *gorm.DB, ks *vkeys.Store, trust config.Trust) error {
	if err := services.SeedCatalog(ctx, db, trust.Contents); err != nil {
		return err
	}
	return ks.Seed(ctx, trust.VerificationKeys)
}

// OpenKV returns the configured key-value backend.
func OpenKV(ctx context.Context, cfg config.KVConfig) (kv.Store, error) {
	switch cfg.Backend {
	case "redis":
		return kv.NewRedis(ctx, kv.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "paygate:",
		})
	case "memory", "":
		return kv.NewMemory(cfg.MemoryEntries)
	default:
		return nil, fmt.Errorf("unsupported kv backend %q", cfg.Backend)
	}
}

// OpenLedger returns the configured settlement client.
func OpenLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Client, error) {
	switch cfg.Mode {
	case "rpc":
		return ledger.DialRPC(ctx, cfg.RPCURL)
	case "mock", "":
		return ledger.NewMock(cfg.Account), nil
	default:
		return nil, fmt.Errorf("unsupported ledger mode %q", cfg.Mode)
	}
}

func openEvents(cfg config.EventsConfig) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.LogPublisher{}, nil
	}
	return events.DialAMQP(cfg.AMQPURL, cfg.Exchange)
}

// New builds the full graph. On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config) (a *App, err error) {
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.Trust, err = config.LoadTrust(cfg.TrustFile); err != nil {
		return a, err
	}

	if a.DB, err = OpenDB(cfg); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	prim := proof.NewGroth16()
	a.Keys = NewKeyStore(a.DB, prim)
	if err = Seed(ctx, a.DB, a.Keys, a.Trust); err != nil {
		return a, err
	}
	if err = a.Keys.Load(ctx); err != nil {
		return a, err
	}

	if a.KV, err = OpenKV(ctx, cfg.KV); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.KV.Close)

	if a.Ledger, err = OpenLedger(ctx, cfg.Ledger); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error { a.Ledger.Close(); return nil })

	if a.Events, err = openEvents(cfg.Events); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Events.Close)

	deriver, err := keys.NewDeriver(cfg.KeyMaster)
	if err != nil {
		return a, err
	}

	a.Verifier = proof.NewVerifier(a.Keys, prim, a.KV, proof.Options{
		Concurrency: cfg.Verifier.Concurrency,
		SuccessTTL:  cfg.Verifier.CacheSuccessTTL,
		FailureTTL:  cfg.Verifier.CacheFailureTTL,
	})
	a.Grants = access.New(a.KV, cfg.AccessTTL)

	var lockout *ratelimit.FixedWindow
	if cfg.NullifierMaxFailures > 0 {
		lockout = ratelimit.NewFixedWindow(a.KV, "lockout:nullifier", cfg.NullifierMaxFailures, cfg.NullifierLockoutWindow)
	}
	a.Sessions = &services.SessionService{
		DB:             a.DB,
		Verifier:       a.Verifier,
		Ledger:         a.Ledger,
		Keys:           deriver,
		Access:         a.Grants,
		Events:         a.Events,
		Lockout:        lockout,
		QuoteTTL:       cfg.QuoteTTL,
		AccessTTL:      cfg.AccessTTL,
		PlatformFeeBps: cfg.PlatformFeeBps,
	}
	a.Sessions.SetPaused(cfg.PaymentsPaused)

	if cfg.Bridge.GuardianURL != "" {
		guardians, err := bridge.ParseGuardians(a.Trust.Guardians)
		if err != nil {
			return a, err
		}
		if len(guardians) == 0 {
			log.Ctx(ctx).Warn().Msg("no guardian set configured; signatures are counted without recovery")
		}
		var limiter *ratelimit.FixedWindow
		if cfg.Bridge.RateLimit > 0 {
			limiter = ratelimit.NewFixedWindow(a.KV, "ratelimit:bridge", cfg.Bridge.RateLimit, cfg.Bridge.RateWindow)
		}
		a.Bridge = bridge.New(a.DB,
			bridge.NewHTTPFetcher(cfg.Bridge.GuardianURL, cfg.Bridge.FetchTimeout, nil),
			a.Sessions,
			bridge.Options{
				Emitters:   a.Trust.Emitters,
				Guardians:  guardians,
				Quorum:     cfg.Bridge.Quorum,
				MaxAge:     cfg.Bridge.MaxAge,
				FutureSkew: cfg.Bridge.FutureSkew,
				Limiter:    limiter,
			})
	} else {
		log.Ctx(ctx).Warn().Msg("BRIDGE_GUARDIAN_URL not set; cross-chain verification disabled")
	}

	a.Reconciler = &services.Reconciler{
		DB:      a.DB,
		Ledger:  a.Ledger,
		Workers: cfg.SettleWorkers,
	}
	return a, nil
}

// Router returns a Gin engine with every route registered.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Sessions: a.Sessions,
		Bridge:   a.Bridge,
		Access:   a.Grants,
		Keys:     a.Keys,
		DB:       a.DB,
	}, a.Config)
	return r
}

// StartWorkers launches the key reloader, the expiry sweeper and the
// settlement reconciler. They stop when ctx is done; the returned channel
// closes once all of them returned.
func (a *App) StartWorkers(ctx context.Context) <-chan struct{} {
	type worker struct {
		name     string
		interval time.Duration
		run      func(context.Context, time.Duration)
	}
	ws := []worker{
		{"vkeys-reload", a.Config.Verifier.ReloadInterval, a.Keys.Run},
		{"expiry-sweeper", a.Config.SweepInterval, a.Sessions.RunSweeper},
		{"settlement", a.Config.SettleInterval, a.Reconciler.Run},
	}
	done := make(chan struct{})
	remaining := make(chan struct{}, len(ws))
	for _, w := range ws {
		if w.interval <= 0 {
			remaining <- struct{}{}
			continue
		}
		go func() {
			defer func() { remaining <- struct{}{} }()
			log.Ctx(ctx).Info().Str("worker", w.name).Dur("interval", w.interval).Msg("worker started")
			w.run(ctx, w.interval)
		}()
	}
	go func() {
		for range ws {
			<-remaining
		}
		close(done)
	}()
	return done
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
