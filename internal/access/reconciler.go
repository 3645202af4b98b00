package access

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cinegate/internal/metrics"
)

// Reconciler restores entitlements for approved movie requests whose merge
// did not complete. It satisfies suture.Service.
type Reconciler struct {
	store    Store
	log      zerolog.Logger
	interval time.Duration
}

func NewReconciler(store Store, log zerolog.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reconciler{
		store:    store,
		log:      log.With().Str("component", "reconciler").Logger(),
		interval: interval,
	}
}

// RunOnce makes one pass and returns the number of entitlements it added.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	reqs, err := r.store.ApprovedMovieRequests(ctx)
	if err != nil {
		return 0, err
	}
	users := make(map[string]User)
	repaired := 0
	for _, req := range reqs {
		movieID, ok := req.MovieID()
		if !ok || req.Status != StatusApproved {
			continue
		}
		u, cached := users[req.UserID]
		if !cached {
			u, err = r.store.GetUser(ctx, req.UserID)
			if errors.Is(err, ErrNotFound) {
				r.log.Warn().Str("request", req.ID).Str("user", req.UserID).Msg("approved request references missing user")
				continue
			}
			if err != nil {
				return repaired, err
			}
		}
		if u.Entitled(movieID) {
			users[req.UserID] = u
			continue
		}
		if err := r.store.AddEntitlement(ctx, req.UserID, movieID); err != nil {
			return repaired, err
		}
		u.Entitlements = append(u.Entitlements, movieID)
		users[req.UserID] = u
		repaired++
		metrics.EntitlementsRepaired.Inc()
		r.log.Info().Str("request", req.ID).Str("user", req.UserID).Str("movie", movieID).Msg("entitlement repaired")
	}
	return repaired, nil
}

// Serve runs RunOnce on every tick until ctx is done.
func (r *Reconciler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if n, err := r.RunOnce(ctx); err != nil {
			r.log.Error().Err(err).Msg("reconcile pass failed")
		} else if n > 0 {
			r.log.Info().Int("repaired", n).Msg("reconcile pass complete")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) String() string { return "access-reconciler" }
