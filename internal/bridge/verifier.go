// Package bridge verifies payments made on another chain. A client names a
// message by (origin chain, emitter, sequence); the verifier fetches the
// guardian-signed bytes, checks origin, quorum, payload and freshness, and
// confirms the matching payment session exactly once per message.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/observability"
	"github.com/tbourn/zk-paygate/internal/ratelimit"
	"github.com/tbourn/zk-paygate/internal/repo"
)

// Confirmer is the session layer. ConfirmCrossChain moves the referenced
// session to CONFIRMED inside tx, creating it when it is not known locally;
// AfterConfirm runs once the transaction committed (access grant, events).
type Confirmer interface {
	ConfirmCrossChain(ctx context.Context, tx *gorm.DB, p domain.BridgedPayment) (*domain.PaymentSession, error)
	AfterConfirm(ctx context.Context, s *domain.PaymentSession)
}

// Options configures a Verifier.
type Options struct {
	Emitters   []config.EmitterDef
	Guardians  []common.Address // empty: count signatures without recovery
	Quorum     int
	MaxAge     time.Duration
	FutureSkew time.Duration
	Limiter    *ratelimit.FixedWindow // per-client; nil disables
	Now        func() time.Time
}

// Request references one message.
type Request struct {
	OriginChain   uint16
	OriginAddress string
	Sequence      uint64
	ClientID      string
}

// Verifier runs the bridge pipeline.
type Verifier struct {
	db      *gorm.DB
	fetch   Fetcher
	confirm Confirmer
	opts    Options
	allowed map[string]struct{}
}

// New wires a Verifier. Emitter addresses must already be normalized.
func New(db *gorm.DB, fetch Fetcher, confirm Confirmer, opts Options) *Verifier {
	if opts.Quorum <= 0 {
		opts.Quorum = 13
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	if opts.FutureSkew <= 0 {
		opts.FutureSkew = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	allowed := make(map[string]struct{}, len(opts.Emitters))
	for _, e := range opts.Emitters {
		allowed[emitterKey(e.Chain, e.Address)] = struct{}{}
	}
	return &Verifier{db: db, fetch: fetch, confirm: confirm, opts: opts, allowed: allowed}
}

func emitterKey(chain uint16, addr string) string {
	return strconv.FormatUint(uint64(chain), 10) + "/" + addr
}

// ParseGuardians converts hex guardian addresses.
func ParseGuardians(addrs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(addrs))
	for i, a := range addrs {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("guardian %d: %q is not an address", i, a)
		}
		out = append(out, common.HexToAddress(a))
	}
	return out, nil
}

// VerifyAndProcess validates the referenced message and confirms its
// session. Every rejection after the rate limiter is recorded as a FAILED
// attestation; nothing is confirmed unless the VERIFIED row and the
// session update commit together.
func (v *Verifier) VerifyAndProcess(ctx context.Context, req Request) (*domain.PaymentSession, error) {
	ctx, span := otel.Tracer("bridge/Verifier").Start(ctx, "VerifyAndProcess",
		trace.WithAttributes(
			attribute.Int("bridge.origin_chain", int(req.OriginChain)),
			attribute.Int64("bridge.sequence", int64(req.Sequence)),
		))
	defer span.End()

	att := &domain.CrossChainAttestation{
		OriginChain:   req.OriginChain,
		OriginAddress: truncateHex(req.OriginAddress),
		Sequence:      req.Sequence,
		ClientID:      req.ClientID,
	}

	emitter, err := config.NormalizeEmitter(req.OriginAddress)
	if err != nil {
		return v.fail(ctx, span, att, fmt.Errorf("%w: origin address: %v", domain.ErrMalformedInput, err))
	}
	att.OriginAddress = emitter
	if _, ok := v.allowed[emitterKey(req.OriginChain, emitter)]; !ok {
		return v.fail(ctx, span, att, fmt.Errorf("%w: origin not allowed", domain.ErrMalformedInput))
	}

	if v.opts.Limiter != nil {
		if d := v.opts.Limiter.Allow(ctx, req.ClientID); !d.Allowed {
			observability.BridgeOutcomes.WithLabelValues("rate_limited").Inc()
			return nil, fmt.Errorf("%w: retry in %s", domain.ErrRateLimited, d.RetryAfter.Round(time.Second))
		}
	}

	raw, err := v.fetch.Fetch(ctx, req.OriginChain, emitter, req.Sequence)
	if err != nil {
		return v.fail(ctx, span, att, err)
	}
	vaa, err := ParseVAA(raw)
	if err != nil {
		return v.fail(ctx, span, att, err)
	}
	hash := vaa.MessageHash()
	att.ObservedHash = hash
	span.SetAttributes(attribute.String("bridge.message_hash", hash))

	if vaa.EmitterChain != req.OriginChain || vaa.Emitter() != emitter || vaa.Sequence != req.Sequence {
		return v.fail(ctx, span, att, fmt.Errorf("%w: message does not match the requested reference", domain.ErrMalformedInput))
	}
	// An already processed body is a replay however old it is now.
	if _, err := repo.GetVerifiedAttestation(ctx, v.db, hash); err == nil {
		return v.fail(ctx, span, att, fmt.Errorf("%w: message already processed", domain.ErrReplayDetected))
	} else if !repo.IsNotFound(err) {
		return v.fail(ctx, span, att, err)
	}
	att.SignerCount = vaa.CountSigners(v.opts.Guardians)
	if att.SignerCount < v.opts.Quorum {
		return v.fail(ctx, span, att, fmt.Errorf("%w: %d of %d required signatures", domain.ErrNotYetAttested, att.SignerCount, v.opts.Quorum))
	}

	pay, err := DecodePayment(vaa.Payload)
	if err != nil {
		return v.fail(ctx, span, att, err)
	}
	att.ContentID = truncate(pay.ContentID, 32)
	att.SessionID = pay.SessionID
	att.Payer = pay.Payer
	att.Amount = pay.Amount
	att.PayloadTimestamp = pay.Timestamp.Unix()

	now := v.opts.Now().UTC()
	if now.Sub(pay.Timestamp) > v.opts.MaxAge {
		return v.fail(ctx, span, att, fmt.Errorf("%w: message is %s old", domain.ErrExpired, now.Sub(pay.Timestamp).Round(time.Second)))
	}
	if pay.Timestamp.Sub(now) > v.opts.FutureSkew {
		return v.fail(ctx, span, att, fmt.Errorf("%w: message timestamp is in the future", domain.ErrMalformedInput))
	}
	if err := pay.Validate(); err != nil {
		return v.fail(ctx, span, att, err)
	}

	var sess *domain.PaymentSession
	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := *att
		row.Status = domain.AttestationVerified
		row.MessageHash = &hash
		if err := repo.CreateAttestation(ctx, tx, &row); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return fmt.Errorf("%w: message already processed", domain.ErrReplayDetected)
			}
			return err
		}
		s, err := v.confirm.ConfirmCrossChain(ctx, tx, domain.BridgedPayment{
			MessageHash: hash,
			OriginChain: req.OriginChain,
			ContentID:   pay.ContentID,
			SessionID:   pay.SessionID,
			Nullifier:   pay.Nullifier,
			Payer:       pay.Payer,
			Amount:      pay.Amount,
			Timestamp:   pay.Timestamp,
		})
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		return v.fail(ctx, span, att, err)
	}

	v.confirm.AfterConfirm(ctx, sess)
	observability.BridgeOutcomes.WithLabelValues("verified").Inc()
	log.Ctx(ctx).Info().
		Str("session_id", sess.ID).
		Str("message_hash", hash).
		Int("signers", att.SignerCount).
		Msg("bridged payment confirmed")
	return sess, nil
}

func (v *Verifier) fail(ctx context.Context, span trace.Span, att *domain.CrossChainAttestation, err error) (*domain.PaymentSession, error) {
	att.Status = domain.AttestationFailed
	att.MessageHash = nil
	att.ErrorDetail = err.Error()
	if perr := repo.CreateAttestation(context.WithoutCancel(ctx), v.db, att); perr != nil {
		log.Ctx(ctx).Error().Err(perr).Msg("recording failed attestation")
	}

	outcome := Outcome(err)
	observability.BridgeOutcomes.WithLabelValues(outcome).Inc()
	if outcome == "replay" {
		observability.ReplaysRejected.WithLabelValues(domain.SourceBridge).Inc()
	}
	observability.SpanError(span, err)
	log.Ctx(ctx).Warn().Err(err).
		Uint16("origin_chain", att.OriginChain).
		Uint64("sequence", att.Sequence).
		Str("outcome", outcome).
		Msg("bridge message rejected")
	return nil, err
}

// Outcome names err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, domain.ErrReplayDetected):
		return "replay"
	case errors.Is(err, domain.ErrNotYetAttested):
		return "not_attested"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case errors.Is(err, domain.ErrMalformedInput):
		return "malformed"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	case errors.Is(err, domain.ErrSessionClosed):
		return "session_closed"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateHex(s string) string { return truncate(s, 64) }
