// Package services holds the payment session lifecycle. This file defines
// the service-level errors; each wraps a domain sentinel so handlers can map
// it with errors.Is.
package services

import (
	"fmt"

	"github.com/tbourn/zk-paygate/internal/domain"
)

var (
	// ErrSessionNotFound means no session has the given id.
	ErrSessionNotFound = fmt.Errorf("session %w", domain.ErrNotFound)

	// ErrContentNotFound means the content id is unknown or inactive.
	ErrContentNotFound = fmt.Errorf("content %w", domain.ErrNotFound)

	// ErrInvalidNullifier is returned for a nullifier that is not 32 bytes of hex.
	ErrInvalidNullifier = fmt.Errorf("%w: nullifier must be 32 bytes of hex", domain.ErrMalformedInput)

	// ErrBindingMismatch means the proof's public values do not commit to
	// this session's nullifier or amount.
	ErrBindingMismatch = fmt.Errorf("%w: public values do not match the session", domain.ErrMalformedInput)

	// ErrCredentialRequired is returned when a credential-priced session is
	// paid without a credential proof.
	ErrCredentialRequired = fmt.Errorf("%w: credential proof required for this quote", domain.ErrMalformedInput)
)
