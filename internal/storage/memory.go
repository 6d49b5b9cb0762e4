package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// MemoryStore keeps alerts, QA scores and the supervisor directory in memory.
// It stands in for Postgres when DATABASE_URL is unset or unreachable.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	alerts   []types.SupervisorAlert
	qa       []types.QAScoreRecord
	mappings []types.SupervisorMapping
}

// NewMemoryStore creates a store seeded with the given directory rows
func NewMemoryStore(mappings ...types.SupervisorMapping) *MemoryStore {
	return &MemoryStore{mappings: mappings}
}

// SetMappings replaces the directory rows
func (m *MemoryStore) SetMappings(mappings []types.SupervisorMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = append([]types.SupervisorMapping(nil), mappings...)
}

func (m *MemoryStore) LoadSupervisorMappings(_ context.Context) ([]types.SupervisorMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.SupervisorMapping(nil), m.mappings...), nil
}

func (m *MemoryStore) InsertAlert(_ context.Context, alert types.SupervisorAlert) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	alert.AlertID = m.nextID
	if alert.Status == "" {
		alert.Status = types.AlertStatusActive
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	m.alerts = append(m.alerts, alert)
	return alert.AlertID, nil
}

func (m *MemoryStore) AcknowledgeAlert(_ context.Context, alertID int64, acknowledgedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].AlertID != alertID {
			continue
		}
		now := time.Now()
		by := acknowledgedBy
		m.alerts[i].Status = types.AlertStatusAcknowledged
		m.alerts[i].AcknowledgedAt = &now
		m.alerts[i].AcknowledgedBy = &by
		return nil
	}
	return ErrAlertNotFound
}

func (m *MemoryStore) ListAlerts(_ context.Context, supervisorID string, status types.AlertStatus, limit int) ([]types.SupervisorAlert, error) {
	if limit <= 0 {
		limit = DefaultAlertLimit
	}

	m.mu.RLock()
	out := []types.SupervisorAlert{}
	for _, a := range m.alerts {
		if a.Status != status {
			continue
		}
		if supervisorID != "" && a.SupervisorID != supervisorID {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AlertID > out[j].AlertID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertQAScore(_ context.Context, rec types.QAScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qa = append(m.qa, rec)
	return nil
}

// QAScores returns a copy of the stored QA records
func (m *MemoryStore) QAScores() []types.QAScoreRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.QAScoreRecord(nil), m.qa...)
}
