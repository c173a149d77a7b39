// Package vkeys keeps the verification keys used by the proof verifier.
// Keys are read from the database into an immutable in-memory snapshot at
// startup; Reload rebuilds the snapshot and swaps it atomically, so readers
// never block and never see a half-built view.
package vkeys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/repo"
)

// Registry limits.
const (
	MaxCircuitLen = 32
	MaxVersionLen = 16
	MaxParamsLen  = 8192
	MinParamsLen  = 32
)

// Key is an immutable view of one verification key.
type Key struct {
	Circuit   string    `json:"circuit"`
	Version   string    `json:"version"`
	Params    []byte    `json:"-"`
	Hash      string    `json:"paramsHash"`
	Active    bool      `json:"active"`
	Retired   bool      `json:"retired"`
	CreatedAt time.Time `json:"createdAt"`
}

type snapshot struct {
	active    map[string]Key
	byVersion map[string]map[string]Key
	all       []Key
}

// Store serves verification keys from a snapshot of the database.
type Store struct {
	db   *gorm.DB
	snap atomic.Pointer[snapshot]

	// Validate, when set, rejects params the verifier cannot parse.
	Validate func(params []byte) error
}

// New returns an empty Store; call Load before serving.
func New(db *gorm.DB) *Store {
	s := &Store{db: db}
	s.snap.Store(&snapshot{active: map[string]Key{}, byVersion: map[string]map[string]Key{}})
	return s
}

// Load reads every key and installs the snapshot.
func (s *Store) Load(ctx context.Context) error { return s.Reload(ctx) }

// Reload rebuilds the snapshot from the database and swaps it in. On error
// the previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) error {
	rows, err := repo.ListVerificationKeys(ctx, s.db)
	if err != nil {
		return fmt.Errorf("vkeys: load: %w", err)
	}
	next := &snapshot{
		active:    make(map[string]Key),
		byVersion: make(map[string]map[string]Key),
		all:       make([]Key, 0, len(rows)),
	}
	circuits := map[string]struct{}{}
	for _, r := range rows {
		k := Key{
			Circuit:   r.CircuitType,
			Version:   r.Version,
			Params:    r.Params,
			Hash:      r.ParamsHash,
			Active:    r.Active && r.RetiredAt == nil,
			Retired:   r.RetiredAt != nil,
			CreatedAt: r.CreatedAt,
		}
		circuits[k.Circuit] = struct{}{}
		if next.byVersion[k.Circuit] == nil {
			next.byVersion[k.Circuit] = map[string]Key{}
		}
		next.byVersion[k.Circuit][k.Version] = k
		next.all = append(next.all, k)
		if !k.Active {
			continue
		}
		// Rows arrive newest first, so the first active key wins.
		if prev, dup := next.active[k.Circuit]; dup {
			log.Ctx(ctx).Warn().Str("circuit", k.Circuit).
				Str("kept", prev.Version).Str("ignored", k.Version).
				Msg("multiple active verification keys")
			continue
		}
		next.active[k.Circuit] = k
	}
	for c := range circuits {
		if _, ok := next.active[c]; !ok {
			log.Ctx(ctx).Warn().Str("circuit", c).Msg("no active verification key")
		}
	}
	if len(rows) == 0 {
		log.Ctx(ctx).Warn().Msg("verification key store is empty")
	}
	s.snap.Store(next)
	return nil
}

// GetActiveKey returns the active key for circuit, or an error wrapping
// domain.ErrNotFound.
func (s *Store) GetActiveKey(circuit string) (Key, error) {
	k, ok := s.snap.Load().active[circuit]
	if !ok {
		return Key{}, fmt.Errorf("%w: no active key for circuit %q", domain.ErrNotFound, circuit)
	}
	return k, nil
}

// GetKey returns a specific non-retired version. Inactive but unretired
// versions remain usable for in-flight proofs made against them.
func (s *Store) GetKey(circuit, version string) (Key, error) {
	k, ok := s.snap.Load().byVersion[circuit][version]
	if !ok || k.Retired {
		return Key{}, fmt.Errorf("%w: no usable key %s/%s", domain.ErrNotFound, circuit, version)
	}
	return k, nil
}

// List returns every key in the snapshot.
func (s *Store) List() []Key {
	all := s.snap.Load().all
	out := make([]Key, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Circuit != out[j].Circuit {
			return out[i].Circuit < out[j].Circuit
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// ValidateParams applies the registry limits.
func ValidateParams(circuit, version string, params []byte) error {
	switch {
	case circuit == "" || len(circuit) > MaxCircuitLen:
		return fmt.Errorf("%w: circuit type must be 1..%d bytes", domain.ErrMalformedInput, MaxCircuitLen)
	case version == "" || len(version) > MaxVersionLen:
		return fmt.Errorf("%w: version must be 1..%d bytes", domain.ErrMalformedInput, MaxVersionLen)
	case len(params) < MinParamsLen:
		return fmt.Errorf("%w: params must be at least %d bytes", domain.ErrMalformedInput, MinParamsLen)
	case len(params) > MaxParamsLen:
		return fmt.Errorf("%w: params exceed %d bytes", domain.ErrMalformedInput, MaxParamsLen)
	}
	for _, b := range params {
		if b != 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: params are all zero", domain.ErrMalformedInput)
}

// HashParams returns the hex SHA-256 of params.
func HashParams(params []byte) string {
	sum := sha256.Sum256(params)
	return hex.EncodeToString(sum[:])
}

// ErrExists is returned when (circuit, version) is already registered.
var ErrExists = errors.New("verification key already registered")

// Register stores a new key, optionally activating it, and reloads.
func (s *Store) Register(ctx context.Context, circuit, version string, params []byte, activate bool) (Key, error) {
	if err := ValidateParams(circuit, version, params); err != nil {
		return Key{}, err
	}
	if s.Validate != nil {
		if err := s.Validate(params); err != nil {
			return Key{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
		}
	}
	row := &domain.VerificationKey{
		CircuitType: circuit,
		Version:     version,
		Params:      params,
		ParamsHash:  HashParams(params),
	}
	if err := repo.CreateVerificationKey(ctx, s.db, row); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return Key{}, ErrExists
		}
		return Key{}, err
	}
	if activate {
		if err := repo.ActivateVerificationKey(ctx, s.db, circuit, version); err != nil {
			return Key{}, err
		}
	}
	if err := s.Reload(ctx); err != nil {
		return Key{}, err
	}
	log.Ctx(ctx).Info().Str("circuit", circuit).Str("version", version).
		Str("params_hash", row.ParamsHash).Bool("active", activate).
		Msg("verification key registered")
	return s.snap.Load().byVersion[circuit][version], nil
}

// Activate makes version the only active key of circuit.
func (s *Store) Activate(ctx context.Context, circuit, version string) error {
	if err := repo.ActivateVerificationKey(ctx, s.db, circuit, version); err != nil {
		if repo.IsNotFound(err) {
			return fmt.Errorf("%w: key %s/%s", domain.ErrNotFound, circuit, version)
		}
		return err
	}
	return s.Reload(ctx)
}

// Retire marks a key unusable.
func (s *Store) Retire(ctx context.Context, circuit, version string) error {
	if err := repo.RetireVerificationKey(ctx, s.db, circuit, version, time.Now().UTC()); err != nil {
		if repo.IsNotFound(err) {
			return fmt.Errorf("%w: key %s/%s", domain.ErrNotFound, circuit, version)
		}
		return err
	}
	return s.Reload(ctx)
}

// Seed registers the trust file's keys that are not in the database yet.
func (s *Store) Seed(ctx context.Context, defs []config.VKeyDef) error {
	for _, d := range defs {
		params, err := os.ReadFile(d.File)
		if err != nil {
			return fmt.Errorf("vkeys: seed %s/%s: %w", d.Circuit, d.Version, err)
		}
		if _, err := s.Register(ctx, d.Circuit, d.Version, params, d.Active); err != nil {
			if errors.Is(err, ErrExists) {
				continue
			}
			return fmt.Errorf("vkeys: seed %s/%s: %w", d.Circuit, d.Version, err)
		}
	}
	return nil
}

// Run reloads the snapshot every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Reload(ctx); err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("verification key reload failed")
			}
		}
	}
}
