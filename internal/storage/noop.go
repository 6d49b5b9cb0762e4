package storage

import (
	"context"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// NoopSnapshotStore is a no-op implementation when snapshots are disabled
type NoopSnapshotStore struct{}

func NewNoopSnapshotStore() *NoopSnapshotStore { return &NoopSnapshotStore{} }

func (s *NoopSnapshotStore) SaveCallSnapshot(_ context.Context, _ types.CallSnapshot) error {
	return nil
}

func (s *NoopSnapshotStore) ListAgentSnapshots(_ context.Context, _ string, _ int) ([]types.CallSnapshot, error) {
	return []types.CallSnapshot{}, nil
}
