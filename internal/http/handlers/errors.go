// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Every
// error response carries one of these codes together with an HTTP status.
// errStatus maps the domain error taxonomy onto (status, code) with
// errors.Is, so services never know about HTTP.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "replay_detected",
//	  "message": "replay detected"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidProof    = "invalid_proof"
	ErrCodeReplayDetected  = "replay_detected"
	ErrCodeSessionClosed   = "session_closed"
	ErrCodeExpired         = "expired"
	ErrCodeNotYetAttested  = "not_yet_attested"
	ErrCodeConfiguration   = "configuration_error"
	ErrCodePaymentsPaused  = "payments_paused"
	ErrCodeUpstream        = "upstream_error"
	ErrCodeKeyExists       = "key_exists"
	ErrCodeBadIdempotency  = "bad_idempotency_key"
)

// errStatus maps an error returned by a service to its HTTP status and
// code. The boolean is false for unclassified errors, whose message must
// not reach the client.
func errStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, vkeys.ErrExists):
		return http.StatusConflict, ErrCodeKeyExists, true
	case errors.Is(err, domain.ErrPaused):
		return http.StatusServiceUnavailable, ErrCodePaymentsPaused, true
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest, ErrCodeBadRequest, true
	case errors.Is(err, domain.ErrVerificationFailed):
		return http.StatusUnauthorized, ErrCodeInvalidProof, true
	case errors.Is(err, domain.ErrReplayDetected):
		return http.StatusConflict, ErrCodeReplayDetected, true
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict, ErrCodeSessionClosed, true
	case errors.Is(err, domain.ErrExpired):
		return http.StatusBadRequest, ErrCodeExpired, true
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodeRateLimited, true
	case errors.Is(err, domain.ErrNotYetAttested):
		return http.StatusAccepted, ErrCodeNotYetAttested, true
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable, ErrCodeConfiguration, true
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, ErrCodeUpstream, true
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, true
	default:
		return http.StatusInternalServerError, ErrCodeInternal, false
	}
}
