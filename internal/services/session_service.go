// Package services – SessionService
//
// This file implements SessionService, which owns the payment session state
// machine: quotes create PENDING sessions, a verified proof (or a verified
// cross-chain message) moves a session to CONFIRMED exactly once, a rejected
// proof moves it to FAILED, and the deadline moves it to EXPIRED.
//
// Every transition is a compare-and-set in the repository and the nullifier
// is consumed by the same UPDATE that confirms the session, so the unique
// index is the final word on double spends. Ledger submission, access
// grants and settlement events follow the CONFIRMED write; a ledger failure
// leaves the reference NULL for the reconciler to retry.
//
// Observability: public methods open OpenTelemetry spans and bump the
// session transition counters.
package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/events"
	"github.com/tbourn/zk-paygate/internal/ledger"
	"github.com/tbourn/zk-paygate/internal/observability"
	"github.com/tbourn/zk-paygate/internal/proof"
	"github.com/tbourn/zk-paygate/internal/ratelimit"
	"github.com/tbourn/zk-paygate/internal/repo"
)

// ProofVerifier checks a proof against a registered key; *proof.Verifier
// satisfies it.
type ProofVerifier interface {
	Verify(ctx context.Context, req proof.Request) (proof.Result, error)
}

// KeyDeriver produces the decryption key released on confirmation.
type KeyDeriver interface {
	Derive(contentID, sessionID string) (string, error)
}

// AccessGranter issues, reads and removes access grants; *access.Grants
// satisfies it.
type AccessGranter interface {
	Grant(ctx context.Context, contentID, sessionID string, ttl time.Duration) (time.Time, error)
	Expiry(ctx context.Context, contentID, sessionID string) (time.Time, bool, error)
	Revoke(ctx context.Context, contentID, sessionID string) error
}

// SessionService coordinates quotes, proof submission and confirmation.
type SessionService struct {
	DB       *gorm.DB
	Verifier ProofVerifier
	Ledger   ledger.Client
	Keys     KeyDeriver
	Access   AccessGranter
	Events   events.Publisher // nil disables publishing

	// Lockout counts failed proofs per nullifier; nil disables it.
	Lockout *ratelimit.FixedWindow

	QuoteTTL       time.Duration
	AccessTTL      time.Duration
	IdempotencyTTL time.Duration // keyed quotes; 0 means DefaultIdempotencyTTL
	PlatformFeeBps int
	Now            func() time.Time

	paused atomic.Bool
}

// SetPaused switches payment intake off or on.
func (s *SessionService) SetPaused(p bool) { s.paused.Store(p) }

// Paused reports whether payment intake is switched off.
func (s *SessionService) Paused() bool { return s.paused.Load() }

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SessionService) tracer() trace.Tracer { return otel.Tracer("services/SessionService") }

// Quote is the priced offer returned to the payer.
type Quote struct {
	SessionID   string    `json:"sessionId"`
	ContentID   string    `json:"contentId"`
	Price       int64     `json:"price,string"`
	PlatformFee int64     `json:"platformFee,string"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Quote prices contentID and opens a PENDING session that expires after
// QuoteTTL.
func (s *SessionService) Quote(ctx context.Context, contentID string, hasCredential bool) (*Quote, error) {
	ctx, span := s.tracer().Start(ctx, "Quote",
		trace.WithAttributes(
			attribute.String("content.id", contentID),
			attribute.Bool("quote.credential", hasCredential),
		),
	)
	defer span.End()

	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return nil, fmt.Errorf("%w: contentId is required", domain.ErrMalformedInput)
	}
	c, err := repo.GetContent(ctx, s.DB, contentID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	price := c.PriceFor(hasCredential)
	if price <= 0 {
		return nil, fmt.Errorf("%w: content %q has no payable price", domain.ErrConfiguration, contentID)
	}

	now := s.now()
	sess := &domain.PaymentSession{
		ID:          uuid.NewString(),
		ContentID:   c.ID,
		Amount:      price,
		PlatformFee: domain.BasisPoints(price, s.PlatformFeeBps),
		Credential:  hasCredential,
		Status:      domain.StatusPending,
		Source:      domain.SourceDirect,
		ExpiresAt:   now.Add(s.QuoteTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateSession(ctx, s.DB, sess); err != nil {
		observability.SpanError(span, err)
		return nil, err
	}
	observability.SessionTransitions.WithLabelValues(string(domain.StatusPending)).Inc()
	span.SetAttributes(attribute.String("session.id", sess.ID))

	return &Quote{
		SessionID:   sess.ID,
		ContentID:   sess.ContentID,
		Price:       sess.Amount,
		PlatformFee: sess.PlatformFee,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// SubmitRequest carries a payer's proof for one session.
type SubmitRequest struct {
	SessionID              string
	Nullifier              string
	Proof                  proof.Proof
	PublicValues           []string
	VKeyVersion            string
	CredentialProof        *proof.Proof
	CredentialPublicValues []string
	PayerHint              string
}

// Payment is the result of a confirmed session.
type Payment struct {
	SessionID       string     `json:"sessionId"`
	ContentID       string     `json:"contentId"`
	DecryptionKey   string     `json:"decryptionKey"`
	OnChainRef      string     `json:"onChainRef,omitempty"`
	AccessExpiresAt *time.Time `json:"accessExpiresAt,omitempty"`
}

// CanonicalNullifier parses a 32-byte hex nullifier (optional 0x prefix)
// and returns its value reduced into the scalar field as 64 lowercase hex
// characters. Two encodings of the same field element map to one string.
func CanonicalNullifier(raw string) (string, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	if len(h) != 64 {
		return "", ErrInvalidNullifier
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return "", ErrInvalidNullifier
	}
	n := new(big.Int).SetBytes(b)
	n.Mod(n, proof.ScalarModulus())
	if n.Sign() == 0 {
		return "", ErrInvalidNullifier
	}
	return fmt.Sprintf("%064x", n), nil
}

// SubmitProof verifies req and, on success, confirms the session, consumes
// the nullifier and releases the decryption key.
func (s *SessionService) SubmitProof(ctx context.Context, req SubmitRequest) (*Payment, error) {
	ctx, span := s.tracer().Start(ctx, "SubmitProof",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)),
	)
	defer span.End()

	if s.Paused() {
		return nil, domain.ErrPaused
	}
	nullifier, err := CanonicalNullifier(req.Nullifier)
	if err != nil {
		return nil, err
	}
	if len(req.PayerHint) > 66 {
		return nil, fmt.Errorf("%w: payerHint exceeds 66 characters", domain.ErrMalformedInput)
	}

	sess, err := s.open(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if s.Lockout != nil {
		if locked, retry := s.Lockout.Exceeded(ctx, nullifier); locked {
			return nil, fmt.Errorf("%w: too many failed proofs for this nullifier, retry in %s",
				domain.ErrRateLimited, retry.Round(time.Second))
		}
	}
	used, err := repo.NullifierUsed(ctx, s.DB, nullifier)
	if err != nil {
		return nil, err
	}
	if used {
		observability.ReplaysRejected.WithLabelValues(domain.SourceDirect).Inc()
		return nil, fmt.Errorf("%w: nullifier already spent", domain.ErrReplayDetected)
	}
	if err := checkBinding(req.PublicValues, nullifier, sess.Amount); err != nil {
		return nil, err
	}

	if sess.Credential {
		if req.CredentialProof == nil {
			return nil, ErrCredentialRequired
		}
		res, err := s.Verifier.Verify(ctx, proof.Request{
			Circuit:      proof.CircuitCredential,
			Proof:        *req.CredentialProof,
			PublicValues: req.CredentialPublicValues,
		})
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, s.reject(ctx, sess, nullifier, "credential proof rejected")
		}
	}

	res, err := s.Verifier.Verify(ctx, proof.Request{
		Circuit:      proof.CircuitSpend,
		Version:      req.VKeyVersion,
		Proof:        req.Proof,
		PublicValues: req.PublicValues,
	})
	if err != nil {
		observability.SpanError(span, err)
		return nil, err
	}
	if !res.Valid {
		reason := res.Error
		if reason == "" {
			reason = "proof rejected"
		}
		return nil, s.reject(ctx, sess, nullifier, reason)
	}

	key, err := s.Keys.Derive(sess.ContentID, sess.ID)
	if err != nil {
		return nil, err
	}

	audit, _ := json.Marshal(directAudit{
		Proof:                  req.Proof,
		PublicValues:           req.PublicValues,
		CredentialProof:        req.CredentialProof,
		CredentialPublicValues: req.CredentialPublicValues,
	})
	conf := repo.Confirmation{
		Nullifier:     nullifier,
		DecryptionKey: key,
		VKeyVersion:   res.VKeyVersion,
		ProofPayload:  string(audit),
	}
	if req.PayerHint != "" {
		hint := req.PayerHint
		conf.PayerHint = &hint
	}
	now := s.now()
	if err := repo.ConfirmSession(ctx, s.DB, sess.ID, conf, now); err != nil {
		return nil, s.confirmFailed(ctx, sess.ID, err)
	}

	sess.Status = domain.StatusConfirmed
	sess.Nullifier = &nullifier
	sess.DecryptionKey = key
	sess.VKeyVersion = res.VKeyVersion
	sess.ConfirmedAt = &now
	if s.Lockout != nil {
		s.Lockout.Reset(ctx, nullifier)
	}
	ref := s.settle(ctx, sess)
	if ref != "" {
		sess.OnChainRef = &ref
	}
	exp := s.afterConfirm(ctx, sess)

	log.Ctx(ctx).Info().
		Str("session_id", sess.ID).
		Str("content_id", sess.ContentID).
		Str("vkey", res.VKeyVersion).
		Msg("payment confirmed")

	return &Payment{
		SessionID:       sess.ID,
		ContentID:       sess.ContentID,
		DecryptionKey:   key,
		OnChainRef:      ref,
		AccessExpiresAt: exp,
	}, nil
}

// settle hands a confirmed session to the ledger and stores the reference.
// The nullifier is already claimed, so a ledger failure does not undo the
// payment: the session keeps a NULL reference and the reconciler retries.
func (s *SessionService) settle(ctx context.Context, sess *domain.PaymentSession) string {
	ctx = context.WithoutCancel(ctx)
	ref, err := submitSession(ctx, s.DB, s.Ledger, sess, s.now())
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("ledger submission deferred to reconciler")
		return ""
	}
	return ref
}

// submitSession submits sess to the ledger and records the reference.
// Submissions are keyed by session id, so a retry after a lost reference
// settles once.
func submitSession(ctx context.Context, db *gorm.DB, lc ledger.Client, sess *domain.PaymentSession, now time.Time) (string, error) {
	sub := ledger.Submission{
		SessionID:   sess.ID,
		ContentID:   sess.ContentID,
		Amount:      sess.Amount,
		PlatformFee: sess.PlatformFee,
	}
	if sess.Nullifier != nil {
		sub.Nullifier = *sess.Nullifier
	}
	ref, err := lc.Submit(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("%w: ledger submission failed: %v", domain.ErrUpstream, err)
	}
	if err := repo.RecordSubmission(ctx, db, sess.ID, ref, now); err != nil && !errors.Is(err, repo.ErrConflict) {
		return "", err
	}
	return ref, nil
}

type directAudit struct {
	Proof                  proof.Proof  `json:"proof"`
	PublicValues           []string     `json:"publicValues"`
	CredentialProof        *proof.Proof `json:"credentialProof,omitempty"`
	CredentialPublicValues []string     `json:"credentialPublicValues,omitempty"`
}

type bridgeAudit struct {
	MessageHash string    `json:"messageHash"`
	OriginChain uint16    `json:"originChain"`
	Payer       string    `json:"payer"`
	Timestamp   time.Time `json:"timestamp"`
}

// open loads a session that can still accept a proof. A PENDING session past
// its deadline is moved to EXPIRED on the way.
func (s *SessionService) open(ctx context.Context, id string) (*domain.PaymentSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	now := s.now()
	if sess.Expired(now) {
		s.expire(ctx, sess.ID, now)
		return nil, fmt.Errorf("%w: quote expired at %s", domain.ErrExpired, sess.ExpiresAt.Format(time.RFC3339))
	}
	if sess.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrSessionClosed, sess.Status)
	}
	return sess, nil
}

func (s *SessionService) expire(ctx context.Context, id string, now time.Time) {
	err := repo.TransitionSession(ctx, s.DB, id, domain.StatusExpired, "quote expired", now)
	switch {
	case err == nil:
		observability.SessionTransitions.WithLabelValues(string(domain.StatusExpired)).Inc()
	case errors.Is(err, repo.ErrConflict):
	default:
		log.Ctx(ctx).Warn().Err(err).Str("session_id", id).Msg("expire session failed")
	}
}

// reject moves the session to FAILED without consuming the nullifier and
// counts the failure against it.
func (s *SessionService) reject(ctx context.Context, sess *domain.PaymentSession, nullifier, reason string) error {
	err := repo.TransitionSession(ctx, s.DB, sess.ID, domain.StatusFailed, reason, s.now())
	switch {
	case err == nil:
		observability.SessionTransitions.WithLabelValues(string(domain.StatusFailed)).Inc()
	case errors.Is(err, repo.ErrConflict):
		log.Ctx(ctx).Debug().Str("session_id", sess.ID).Msg("session left PENDING before it could be failed")
	default:
		log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("fail session")
	}
	if s.Lockout != nil {
		s.Lockout.Record(ctx, nullifier)
	}
	log.Ctx(ctx).Info().Str("session_id", sess.ID).Str("reason", reason).Msg("proof rejected")
	return fmt.Errorf("%w: %s", domain.ErrVerificationFailed, reason)
}

// confirmFailed maps a failed confirmation CAS onto the domain taxonomy.
func (s *SessionService) confirmFailed(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		observability.ReplaysRejected.WithLabelValues(domain.SourceDirect).Inc()
		return fmt.Errorf("%w: nullifier already spent", domain.ErrReplayDetected)
	case errors.Is(err, repo.ErrConflict):
		cur, gerr := repo.GetSession(ctx, s.DB, id)
		if gerr != nil {
			return gerr
		}
		now := s.now()
		if cur.Expired(now) {
			s.expire(ctx, id, now)
			return fmt.Errorf("%w: quote expired before confirmation", domain.ErrExpired)
		}
		return fmt.Errorf("%w: session is %s", domain.ErrSessionClosed, cur.Status)
	default:
		return err
	}
}

// checkBinding ties the spend proof to this session: public value 1 is the
// nullifier and public value 3 the amount.
func checkBinding(publics []string, nullifier string, amount int64) error {
	if len(publics) <= proof.SpendExternalNullifier {
		return fmt.Errorf("%w: spend proof takes %d public values, got %d",
			domain.ErrMalformedInput, proof.SpendExternalNullifier+1, len(publics))
	}
	mod := proof.ScalarModulus()
	got, ok := proof.ParseCanonical(publics[proof.SpendNullifier], mod)
	if !ok {
		return fmt.Errorf("%w: public value %d is not a canonical field element", domain.ErrMalformedInput, proof.SpendNullifier)
	}
	want, _ := new(big.Int).SetString(nullifier, 16)
	if got.Cmp(want) != 0 {
		return ErrBindingMismatch
	}
	amt, ok := proof.ParseCanonical(publics[proof.SpendAmount], mod)
	if !ok {
		return fmt.Errorf("%w: public value %d is not a canonical field element", domain.ErrMalformedInput, proof.SpendAmount)
	}
	if !amt.IsInt64() || amt.Int64() != amount {
		return ErrBindingMismatch
	}
	return nil
}

// ConfirmCrossChain confirms the session named by a verified bridge message
// inside tx. A session unknown locally is created directly as CONFIRMED;
// its amount must match the content's base or credential price. Bridged
// payments settle on the origin chain, so the session carries no ledger
// reference and is marked settled at once.
func (s *SessionService) ConfirmCrossChain(ctx context.Context, tx *gorm.DB, p domain.BridgedPayment) (*domain.PaymentSession, error) {
	ctx, span := s.tracer().Start(ctx, "ConfirmCrossChain",
		trace.WithAttributes(
			attribute.String("session.id", p.SessionID),
			attribute.String("bridge.message_hash", p.MessageHash),
		),
	)
	defer span.End()

	nullifier, err := CanonicalNullifier(p.Nullifier)
	if err != nil {
		return nil, err
	}
	c, err := repo.GetContent(ctx, tx, p.ContentID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, fmt.Errorf("%w: unknown content %q", domain.ErrMalformedInput, p.ContentID)
		}
		return nil, err
	}
	key, err := s.Keys.Derive(p.ContentID, p.SessionID)
	if err != nil {
		return nil, err
	}
	audit, _ := json.Marshal(bridgeAudit{
		MessageHash: p.MessageHash,
		OriginChain: p.OriginChain,
		Payer:       p.Payer,
		Timestamp:   p.Timestamp,
	})
	payer := p.Payer
	now := s.now()

	sess, err := repo.GetSession(ctx, tx, p.SessionID)
	switch {
	case repo.IsNotFound(err):
		base, cred := c.PriceFor(false), c.PriceFor(true)
		if p.Amount != base && p.Amount != cred {
			return nil, fmt.Errorf("%w: amount %d does not match the price of %q", domain.ErrMalformedInput, p.Amount, p.ContentID)
		}
		sess = &domain.PaymentSession{
			ID:            p.SessionID,
			ContentID:     c.ID,
			Amount:        p.Amount,
			PlatformFee:   domain.BasisPoints(p.Amount, s.PlatformFeeBps),
			Credential:    p.Amount != base,
			PayerHint:     &payer,
			Nullifier:     &nullifier,
			Status:        domain.StatusConfirmed,
			Source:        domain.SourceBridge,
			ProofPayload:  string(audit),
			DecryptionKey: key,
			ExpiresAt:     now.Add(s.QuoteTTL),
			CreatedAt:     now,
			UpdatedAt:     now,
			ConfirmedAt:   &now,
			SettledAt:     &now,
		}
		if err := repo.CreateSession(ctx, tx, sess); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return nil, fmt.Errorf("%w: nullifier or session already used", domain.ErrReplayDetected)
			}
			return nil, err
		}
		return sess, nil
	case err != nil:
		return nil, err
	}

	if sess.ContentID != p.ContentID || sess.Amount != p.Amount {
		return nil, fmt.Errorf("%w: message does not match session %s", domain.ErrMalformedInput, sess.ID)
	}
	if sess.Expired(now) {
		return nil, fmt.Errorf("%w: quote expired at %s", domain.ErrExpired, sess.ExpiresAt.Format(time.RFC3339))
	}
	if sess.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrSessionClosed, sess.Status)
	}
	err = repo.ConfirmSession(ctx, tx, sess.ID, repo.Confirmation{
		Nullifier:     nullifier,
		DecryptionKey: key,
		ProofPayload:  string(audit),
		PayerHint:     &payer,
		Source:        domain.SourceBridge,
		SettledAt:     &now,
	}, now)
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return nil, fmt.Errorf("%w: nullifier already spent", domain.ErrReplayDetected)
	case errors.Is(err, repo.ErrConflict):
		return nil, fmt.Errorf("%w: session left PENDING", domain.ErrSessionClosed)
	case err != nil:
		return nil, err
	}
	return repo.GetSession(ctx, tx, sess.ID)
}

// AfterConfirm issues the access grant and publishes the settlement event
// for a session the database already reports CONFIRMED.
func (s *SessionService) AfterConfirm(ctx context.Context, sess *domain.PaymentSession) {
	s.afterConfirm(ctx, sess)
}

func (s *SessionService) afterConfirm(ctx context.Context, sess *domain.PaymentSession) *time.Time {
	ctx = context.WithoutCancel(ctx)
	observability.SessionTransitions.WithLabelValues(string(domain.StatusConfirmed)).Inc()

	var expiry *time.Time
	if s.Access != nil {
		exp, err := s.Access.Grant(ctx, sess.ContentID, sess.ID, s.AccessTTL)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("access grant failed")
		} else {
			expiry = &exp
		}
	}

	if s.Events != nil {
		ev := events.PaymentConfirmed{
			SessionID:   sess.ID,
			ContentID:   sess.ContentID,
			Source:      sess.Source,
			Amount:      sess.Amount,
			PlatformFee: sess.PlatformFee,
			ConfirmedAt: s.now(),
		}
		if sess.OnChainRef != nil {
			ev.OnChainRef = *sess.OnChainRef
		}
		if sess.ConfirmedAt != nil {
			ev.ConfirmedAt = *sess.ConfirmedAt
		}
		if err := s.Events.PaymentConfirmed(ctx, ev); err != nil {
			observability.EventsPublished.WithLabelValues("error").Inc()
			log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("publish payment event failed")
		} else {
			observability.EventsPublished.WithLabelValues("ok").Inc()
		}
	}
	return expiry
}

// SessionView is the externally visible state of a session.
type SessionView struct {
	SessionID       string               `json:"sessionId"`
	ContentID       string               `json:"contentId"`
	Status          domain.SessionStatus `json:"status"`
	Source          string               `json:"source"`
	HasAccess       bool                 `json:"hasAccess"`
	ExpiresAt       time.Time            `json:"expiresAt"`
	AccessExpiresAt *time.Time           `json:"accessExpiresAt,omitempty"`
}

// Status reports a session's state and whether it currently grants access.
// A PENDING session past its deadline is reported (and stored) as EXPIRED.
// A confirmed session whose grant is missing from the cache gets it
// re-issued for the remainder of its lifetime unless access was revoked.
func (s *SessionService) Status(ctx context.Context, id string) (*SessionView, error) {
	ctx, span := s.tracer().Start(ctx, "Status", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	now := s.now()
	view := &SessionView{
		SessionID: sess.ID,
		ContentID: sess.ContentID,
		Status:    sess.Status,
		Source:    sess.Source,
		ExpiresAt: sess.ExpiresAt,
	}
	if sess.Expired(now) {
		s.expire(ctx, sess.ID, now)
		view.Status = domain.StatusExpired
		return view, nil
	}
	if sess.Status != domain.StatusConfirmed || s.Access == nil {
		return view, nil
	}

	exp, ok, err := s.Access.Expiry(ctx, sess.ContentID, sess.ID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("access lookup failed")
		return view, nil
	}
	if !ok && sess.ConfirmedAt != nil && sess.AccessRevokedAt == nil {
		if left := sess.ConfirmedAt.Add(s.AccessTTL).Sub(now); left >= time.Second {
			if exp, err = s.Access.Grant(ctx, sess.ContentID, sess.ID, left); err == nil {
				ok = true
			}
		}
	}
	if ok {
		view.HasAccess = true
		view.AccessExpiresAt = &exp
	}
	return view, nil
}

// RevokeAccess removes the access grant of a confirmed session and records
// the revocation so Status does not re-issue it. ErrSessionNotFound when no
// confirmed session matches contentID and sessionID.
func (s *SessionService) RevokeAccess(ctx context.Context, contentID, sessionID string) error {
	ctx, span := s.tracer().Start(ctx, "RevokeAccess",
		trace.WithAttributes(
			attribute.String("content.id", contentID),
			attribute.String("session.id", sessionID),
		),
	)
	defer span.End()

	if _, err := uuid.Parse(sessionID); err != nil {
		return ErrSessionNotFound
	}
	if err := repo.MarkAccessRevoked(ctx, s.DB, sessionID, contentID, s.now()); err != nil {
		if repo.IsNotFound(err) {
			return ErrSessionNotFound
		}
		observability.SpanError(span, err)
		return err
	}
	if s.Access != nil {
		if err := s.Access.Revoke(ctx, contentID, sessionID); err != nil {
			observability.SpanError(span, err)
			return err
		}
	}
	log.Ctx(ctx).Info().Str("session_id", sessionID).Str("content_id", contentID).Msg("access revoked")
	return nil
}

// ExpireStale moves every PENDING session past its deadline to EXPIRED.
func (s *SessionService) ExpireStale(ctx context.Context) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "ExpireStale")
	defer span.End()

	n, err := repo.ExpireStale(ctx, s.DB, s.now())
	if err != nil {
		observability.SpanError(span, err)
		return 0, err
	}
	if n > 0 {
		observability.SessionTransitions.WithLabelValues(string(domain.StatusExpired)).Add(float64(n))
		log.Ctx(ctx).Info().Int64("expired", n).Msg("expired stale sessions")
	}
	span.SetAttributes(attribute.Int64("sessions.expired", n))
	return n, nil
}
