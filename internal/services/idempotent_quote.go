package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/repo"
)

// scopeQuote names quote requests in the idempotency table.
const scopeQuote = "quote"

// DefaultIdempotencyTTL is used when SessionService.IdempotencyTTL is zero.
const DefaultIdempotencyTTL = 24 * time.Hour

// ErrIdempotencyReuse is returned when a key is replayed with a different body.
var ErrIdempotencyReuse = fmt.Errorf("%w: Idempotency-Key already used for a different quote", domain.ErrMalformedInput)

func (s *SessionService) idemTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return DefaultIdempotencyTTL
}

// QuoteOnce is Quote keyed by (clientID, key). A retry with the same key
// returns the originally quoted session; replayed reports whether it did.
// An empty key behaves like Quote.
func (s *SessionService) QuoteOnce(ctx context.Context, clientID, key, contentID string, hasCredential bool) (q *Quote, replayed bool, err error) {
	if key == "" {
		q, err = s.Quote(ctx, contentID, hasCredential)
		return q, false, err
	}
	if q, err := s.storedQuote(ctx, clientID, key, contentID, hasCredential); err == nil {
		return q, true, nil
	} else if !repo.IsNotFound(err) {
		return nil, false, err
	}

	q, err = s.Quote(ctx, contentID, hasCredential)
	if err != nil {
		return nil, false, err
	}
	_, err = repo.CreateIdempotency(ctx, s.DB, clientID, scopeQuote, key, q.SessionID, http.StatusOK, s.idemTTL(), s.now())
	switch {
	case err == nil:
		return q, false, nil
	case errors.Is(err, repo.ErrDuplicate):
		// A concurrent request with the same key won; its session is the
		// answer and ours expires unused.
		stored, serr := s.storedQuote(ctx, clientID, key, contentID, hasCredential)
		if serr != nil {
			return nil, false, serr
		}
		return stored, true, nil
	default:
		log.Ctx(ctx).Warn().Err(err).Msg("idempotency record not stored")
		return q, false, nil
	}
}

// HasQuote reports whether (clientID, key) already produced a live quote.
func (s *SessionService) HasQuote(ctx context.Context, clientID, key string) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, clientID, scopeQuote, key, s.now())
	if repo.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *SessionService) storedQuote(ctx context.Context, clientID, key, contentID string, hasCredential bool) (*Quote, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, clientID, scopeQuote, key, s.now())
	if err != nil {
		return nil, err
	}
	sess, err := repo.GetSession(ctx, s.DB, rec.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.ContentID != contentID || sess.Credential != hasCredential {
		return nil, ErrIdempotencyReuse
	}
	return &Quote{
		SessionID:   sess.ID,
		ContentID:   sess.ContentID,
		Price:       sess.Amount,
		PlatformFee: sess.PlatformFee,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// PurgeIdempotency drops expired idempotency records.
func (s *SessionService) PurgeIdempotency(ctx context.Context) (int64, error) {
	n, err := repo.PurgeIdempotency(ctx, s.DB, s.now())
	if err == nil && n > 0 {
		log.Ctx(ctx).Debug().Int64("purged", n).Msg("idempotency records purged")
	}
	return n, err
}
