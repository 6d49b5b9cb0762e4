package storage

import (
	"context"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// Relational is the directory, alert and QA persistence. Postgres implements
// it; MemoryStore stands in when no database is configured.
type Relational interface {
	LoadSupervisorMappings(ctx context.Context) ([]types.SupervisorMapping, error)
	InsertAlert(ctx context.Context, alert types.SupervisorAlert) (int64, error)
	AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error
	ListAlerts(ctx context.Context, supervisorID string, status types.AlertStatus, limit int) ([]types.SupervisorAlert, error)
	InsertQAScore(ctx context.Context, rec types.QAScoreRecord) error
}

var (
	_ Relational = (*Postgres)(nil)
	_ Relational = (*MemoryStore)(nil)
)
