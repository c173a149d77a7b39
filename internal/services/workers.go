package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/ledger"
	"github.com/tbourn/zk-paygate/internal/repo"
)

// RunSweeper calls ExpireStale and PurgeIdempotency every interval until
// ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				log.Ctx(ctx).Error().Err(err).Msg("expiry sweep failed")
			}
			if _, err := s.PurgeIdempotency(ctx); err != nil && ctx.Err() == nil {
				log.Ctx(ctx).Error().Err(err).Msg("idempotency purge failed")
			}
		}
	}
}

// Reconciler submits confirmed sessions the ledger has not accepted yet and
// stamps SettledAt once the ledger reports a submission final.
type Reconciler struct {
	DB      *gorm.DB
	Ledger  ledger.Client
	Workers int // concurrent ledger lookups
	Batch   int // sessions per pass; 0 means 100
	Now     func() time.Time
}

// Reconcile runs one pass and returns how many sessions were settled. A
// failed submission or lookup is logged and retried on the next pass; the
// first database error is returned after every lookup finished.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	if err := r.resubmit(ctx, batch); err != nil {
		return 0, err
	}
	pending, err := repo.ListUnsettled(ctx, r.DB, batch)
	if err != nil {
		return 0, err
	}
	var (
		g       errgroup.Group
		settled atomic.Int64
	)
	g.SetLimit(max(r.Workers, 1))
	for _, sess := range pending {
		id, ref := sess.ID, *sess.OnChainRef
		g.Go(func() error {
			final, err := r.Ledger.Confirm(ctx, ref)
			switch {
			case errors.Is(err, ledger.ErrReverted):
				log.Ctx(ctx).Error().Str("session_id", id).Str("ref", ref).Msg("settlement reverted on ledger")
				return nil
			case err != nil:
				log.Ctx(ctx).Warn().Err(err).Str("session_id", id).Msg("settlement lookup failed")
				return nil
			case !final:
				return nil
			}
			if err := repo.MarkSettled(ctx, r.DB, id, r.now()); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return nil
				}
				return err
			}
			settled.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(settled.Load()), err
}

// resubmit hands sessions confirmed without a ledger reference to the
// ledger again.
func (r *Reconciler) resubmit(ctx context.Context, batch int) error {
	unsubmitted, err := repo.ListUnsubmitted(ctx, r.DB, batch)
	if err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(max(r.Workers, 1))
	for i := range unsubmitted {
		sess := &unsubmitted[i]
		g.Go(func() error {
			ref, err := submitSession(ctx, r.DB, r.Ledger, sess, r.now())
			switch {
			case errors.Is(err, domain.ErrUpstream):
				log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("ledger resubmission failed")
				return nil
			case err != nil:
				return err
			}
			log.Ctx(ctx).Info().Str("session_id", sess.ID).Str("ref", ref).Msg("ledger submission recorded")
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Run calls Reconcile every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.Reconcile(ctx)
			if err != nil && ctx.Err() == nil {
				log.Ctx(ctx).Error().Err(err).Msg("settlement reconcile failed")
			}
			if n > 0 {
				log.Ctx(ctx).Info().Int("settled", n).Msg("sessions settled")
			}
		}
	}
}
