// Package proof verifies zero-knowledge payment proofs.
//
// Verifier is the component callers use: it fingerprints the request,
// serves repeated requests from the kv cache, validates structure, resolves
// the verification key and runs the cryptographic Primitive under a
// concurrency bound. It never touches session state.
//
// Groth16 is the production Primitive: snarkjs-format Groth16 proofs over
// BN254 checked with gnark-crypto pairings.
package proof

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/kv"
	"github.com/tbourn/zk-paygate/internal/observability"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// Circuit names with a fixed public-input layout.
const (
	CircuitSpend      = "spend"
	CircuitCredential = "credential"
)

// Spend public-input positions.
const (
	SpendMerkleRoot = iota
	SpendNullifier
	SpendRecipient
	SpendAmount
	SpendExternalNullifier
)

// DefaultPublicInputs declares how many public values each known circuit takes.
var DefaultPublicInputs = map[string]int{
	CircuitSpend:      5,
	CircuitCredential: 3,
}

// Proof is a Groth16 proof in snarkjs JSON layout. Coordinates are decimal
// strings; the optional third (projective) coordinate must be 1.
type Proof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol,omitempty"`
	Curve    string     `json:"curve,omitempty"`
}

// Request is one verification call.
type Request struct {
	Circuit      string
	Version      string // optional; empty selects the active key
	Proof        Proof
	PublicValues []string
}

// Result is the cached verification outcome.
type Result struct {
	Valid       bool   `json:"valid"`
	VKeyVersion string `json:"vkey_version,omitempty"`
	Error       string `json:"error,omitempty"`
	Cached      bool   `json:"-"`
}

// Primitive is the cryptographic check. It returns (false, nil) for a
// proof that does not verify and an error only when it cannot decide.
type Primitive interface {
	Verify(ctx context.Context, key vkeys.Key, p Proof, publics []*big.Int) (bool, error)
}

// KeySource resolves verification keys; *vkeys.Store satisfies it.
type KeySource interface {
	GetActiveKey(circuit string) (vkeys.Key, error)
	GetKey(circuit, version string) (vkeys.Key, error)
}

// Options tunes a Verifier.
type Options struct {
	Concurrency   int           // max concurrent primitive calls; 0 = 2*GOMAXPROCS
	SuccessTTL    time.Duration // cache lifetime of valid results
	FailureTTL    time.Duration // cache lifetime of invalid results
	VerifyTimeout time.Duration // upper bound for one primitive call
	PublicInputs  map[string]int
}

// Verifier implements the cached, bounded verification pipeline.
type Verifier struct {
	keys  KeySource
	prim  Primitive
	cache kv.Store
	sem   *semaphore.Weighted
	group singleflight.Group
	opts  Options
}

// NewVerifier wires a Verifier.
func NewVerifier(keys KeySource, prim Primitive, cache kv.Store, opts Options) *Verifier {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2 * runtime.GOMAXPROCS(0)
	}
	if opts.SuccessTTL <= 0 {
		opts.SuccessTTL = time.Hour
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = 5 * time.Minute
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 30 * time.Second
	}
	if opts.PublicInputs == nil {
		opts.PublicInputs = DefaultPublicInputs
	}
	return &Verifier{
		keys:  keys,
		prim:  prim,
		cache: cache,
		sem:   semaphore.NewWeighted(int64(opts.Concurrency)),
		opts:  opts,
	}
}

// Fingerprint is the hex SHA-256 over the canonical JSON of the request.
func Fingerprint(req Request) string {
	canon := struct {
		Circuit string     `json:"c"`
		Version string     `json:"v"`
		A       []string   `json:"a"`
		B       [][]string `json:"b"`
		C       []string   `json:"k"`
		Public  []string   `json:"p"`
	}{req.Circuit, req.Version, req.Proof.PiA, req.Proof.PiB, req.Proof.PiC, req.PublicValues}
	raw, _ := json.Marshal(canon)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func cacheKey(fp string) string { return "proofcache:" + fp }

// Verify runs the pipeline. Results are cached per key hash and request
// fingerprint. Malformed requests return an error wrapping
// domain.ErrMalformedInput and a missing key one wrapping
// domain.ErrConfiguration; neither is cached. A well-formed proof that
// fails verification returns Result{Valid: false} and a nil error.
func (v *Verifier) Verify(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("proof/Verifier").Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("proof.circuit", req.Circuit)))
	defer span.End()

	publics, err := v.validate(req)
	if err != nil {
		observability.Verifications.WithLabelValues("malformed").Inc()
		return Result{}, err
	}

	key, err := v.resolveKey(req)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			log.Ctx(ctx).Error().Err(err).Str("circuit", req.Circuit).Msg("cannot verify: no active verification key")
			observability.Verifications.WithLabelValues("config_error").Inc()
		}
		return Result{}, err
	}

	// Keyed by the resolved parameters, so retiring or rotating a key
	// orphans the results it produced.
	fp := key.Hash + ":" + Fingerprint(req)
	if res, ok := v.lookup(ctx, fp); ok {
		observability.ProofCacheHits.Inc()
		span.SetAttributes(attribute.Bool("proof.cached", true))
		return res, nil
	}

	// Detached from the caller's cancellation; concurrent waiters on the
	// same fingerprint share one primitive call.
	ch := v.group.DoChan(fp, func() (any, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.opts.VerifyTimeout)
		defer cancel()
		return v.run(wctx, fp, key, req.Proof, publics)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		span.SetAttributes(attribute.Bool("proof.valid", res.Valid))
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (v *Verifier) lookup(ctx context.Context, fp string) (Result, bool) {
	raw, ok, err := v.cache.Get(ctx, cacheKey(fp))
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("proof cache read failed")
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return Result{}, false
	}
	res.Cached = true
	return res, true
}

func (v *Verifier) resolveKey(req Request) (vkeys.Key, error) {
	if req.Version != "" {
		k, err := v.keys.GetKey(req.Circuit, req.Version)
		if err != nil {
			return vkeys.Key{}, fmt.Errorf("%w: unknown key version %q for circuit %q", domain.ErrMalformedInput, req.Version, req.Circuit)
		}
		return k, nil
	}
	k, err := v.keys.GetActiveKey(req.Circuit)
	if err != nil {
		return vkeys.Key{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return k, nil
}

func (v *Verifier) run(ctx context.Context, fp string, key vkeys.Key, p Proof, publics []*big.Int) (Result, error) {
	res := Result{VKeyVersion: key.Version}
	if err := v.sem.Acquire(ctx, 1); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("proof verification queue timed out")
		observability.Verifications.WithLabelValues("busy").Inc()
		return Result{}, fmt.Errorf("%w: verifier busy", domain.ErrUpstream)
	}
	start := time.Now()
	ok, err := v.prim.Verify(ctx, key, p, publics)
	v.sem.Release(1)
	observability.VerifyDuration.Observe(time.Since(start).Seconds())

	ttl := v.opts.FailureTTL
	switch {
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("circuit", key.Circuit).Str("vkey", key.Version).Msg("proof primitive error")
		res.Error = "verifier error"
		observability.Verifications.WithLabelValues("error").Inc()
	case ok:
		res.Valid = true
		ttl = v.opts.SuccessTTL
		observability.Verifications.WithLabelValues("valid").Inc()
	default:
		res.Error = "proof rejected"
		observability.Verifications.WithLabelValues("invalid").Inc()
	}
	if raw, err := json.Marshal(res); err == nil {
		if err := v.cache.Set(ctx, cacheKey(fp), string(raw), ttl); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("proof cache write failed")
		}
	}
	return res, nil
}
