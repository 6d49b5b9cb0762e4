package storage

import (
	"context"
	"sort"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// SnapshotStore persists the final state of ended calls
type SnapshotStore interface {
	SaveCallSnapshot(ctx context.Context, snap types.CallSnapshot) error
	ListAgentSnapshots(ctx context.Context, agentID string, limit int) ([]types.CallSnapshot, error)
}

// NewSnapshotStore creates the snapshot store selected by cfg.Backend.
// A backend that cannot be reached falls back to NoopSnapshotStore.
func NewSnapshotStore(ctx context.Context, cfg SnapshotConfig, logger zerolog.Logger) SnapshotStore {
	logger = logger.With().Str("component", "snapshot_store").Logger()

	switch cfg.Backend {
	case SnapshotBackendDynamo:
		store, err := NewDynamoSnapshotStore(ctx, cfg.Dynamo, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("DynamoDB unavailable, snapshots disabled")
			return NewNoopSnapshotStore()
		}
		return store
	case SnapshotBackendRedis:
		store, err := NewRedisSnapshotStore(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, snapshots disabled")
			return NewNoopSnapshotStore()
		}
		return store
	default:
		logger.Info().Msg("snapshots disabled (SNAPSHOT_BACKEND=none)")
		return NewNoopSnapshotStore()
	}
}

// newestFirst orders snapshots by end time, most recent first, and trims to limit
func newestFirst(snaps []types.CallSnapshot, limit int) []types.CallSnapshot {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].EndTime > snaps[j].EndTime
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps
}
