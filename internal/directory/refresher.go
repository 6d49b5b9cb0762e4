package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// MappingSource loads the full extension -> supervisor mapping
type MappingSource interface {
	LoadSupervisorMappings(ctx context.Context) ([]types.SupervisorMapping, error)
}

// Refresher periodically reloads a Directory from its source
type Refresher struct {
	directory *Directory
	source    MappingSource
	interval  time.Duration
	logger    zerolog.Logger
}

// NewRefresher creates a new Refresher
func NewRefresher(directory *Directory, source MappingSource, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		directory: directory,
		source:    source,
		interval:  interval,
		logger:    logger.With().Str("component", "directory_refresher").Logger(),
	}
}

// Reload fetches the mapping once. On failure the previous mapping stays in place.
func (r *Refresher) Reload(ctx context.Context) error {
	mappings, err := r.source.LoadSupervisorMappings(ctx)
	if err != nil {
		metrics.Get().RecordDirectoryLoad(0, err)
		return fmt.Errorf("failed to load supervisor mappings: %w", err)
	}
	r.directory.Replace(mappings)
	metrics.Get().RecordDirectoryLoad(r.directory.Len(), nil)
	return nil
}

// Start loads the directory immediately and then on every interval
func (r *Refresher) Start(ctx context.Context) {
	r.reload(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("directory refresher started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("directory refresher stopped")
			return
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *Refresher) reload(ctx context.Context) {
	if err := r.Reload(ctx); err != nil {
		r.logger.Warn().Err(err).Int("entries", r.directory.Len()).Msg("keeping previous supervisor directory")
		return
	}
	r.logger.Debug().Int("entries", r.directory.Len()).Msg("supervisor directory reloaded")
}
