package calls

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Reaper periodically ends calls that stopped receiving audio or transcripts
type Reaper struct {
	mgr       *Manager
	interval  time.Duration
	threshold time.Duration
	logger    zerolog.Logger
}

// NewReaper creates a new Reaper
func NewReaper(mgr *Manager, interval, threshold time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		mgr:       mgr,
		interval:  interval,
		threshold: threshold,
		logger:    logger.With().Str("component", "reaper").Logger(),
	}
}

// Start begins the reaper loop, ticking every interval until the context is cancelled
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.interval).
		Dur("threshold", r.threshold).
		Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper stopped")
			return
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep ends every call idle for longer than the threshold and returns how many it ended
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	ended := 0
	for _, id := range r.mgr.Store().Stale(r.threshold, now) {
		_, err := r.mgr.EndCall(ctx, id, ReasonInactive)
		switch {
		case err == nil:
			ended++
		case errors.Is(err, ErrCallEnded), errors.Is(err, ErrCallNotFound):
			// ended concurrently
		default:
			r.logger.Error().Err(err).Str("call_id", id).Msg("failed to end inactive call")
		}
	}
	if ended > 0 {
		r.logger.Info().Int("ended", ended).Msg("inactive calls ended")
	}
	return ended
}
