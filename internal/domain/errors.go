package domain

import "errors"

// Error taxonomy shared by every component. Packages wrap these with %w
// and a client-safe detail; the HTTP layer maps them to status codes with
// errors.Is.
var (
	// ErrMalformedInput covers structural problems: bad hex, wrong lengths,
	// non-canonical field elements, unknown sessions, disallowed origins.
	ErrMalformedInput = errors.New("malformed input")

	// ErrVerificationFailed means the proof or attestation was well formed
	// but did not verify.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrReplayDetected means the nullifier or message hash was already consumed.
	ErrReplayDetected = errors.New("replay detected")

	// ErrNotYetAttested means the guardian quorum has not signed yet; the
	// caller may retry later.
	ErrNotYetAttested = errors.New("not yet attested")

	// ErrExpired means the session or attestation is outside its validity window.
	ErrExpired = errors.New("expired")

	// ErrRateLimited means the caller exceeded a limiter or failure lockout.
	ErrRateLimited = errors.New("rate limited")

	// ErrConfiguration means the service cannot decide, e.g. no active key.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionClosed means the session already reached a terminal state.
	ErrSessionClosed = errors.New("session closed")

	// ErrUpstream means a dependency (guardian API, ledger) failed.
	ErrUpstream = errors.New("upstream failure")

	// ErrPaused means payment intake is switched off by the operator.
	ErrPaused = errors.New("payments paused")
)
