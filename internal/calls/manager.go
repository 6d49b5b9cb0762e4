package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/qa"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// End reasons
const (
	ReasonManual            = "manual_request"
	ReasonSupervisorEnd     = "supervisor_end"
	ReasonSupervisorSummary = "supervisor_summary"
	ReasonInactive          = "auto_inactive_5min"
	ReasonShutdown          = "server_shutdown"
)

// ReasonLegEvent is the end reason for an explicit call_end event on an audio leg
func ReasonLegEvent(leg string) string {
	return "explicit_call_end_event_from_" + strings.ToLower(leg)
}

const (
	snapshotSaveTimeout = 10 * time.Second
	publishTimeout      = 5 * time.Second
)

// QAStore persists QA results
type QAStore interface {
	InsertQAScore(ctx context.Context, rec types.QAScoreRecord) error
}

// SnapshotSaver persists the final state of a call
type SnapshotSaver interface {
	SaveCallSnapshot(ctx context.Context, snap types.CallSnapshot) error
}

// EndPublisher is the subset of the bus the manager needs
type EndPublisher interface {
	PublishCallEnd(ctx context.Context, event types.CallEndEvent) error
}

// StreakTracker is the subset of the alert engine the manager needs
type StreakTracker interface {
	Reset(callID string)
	Rekey(oldID, newID string)
}

// SupervisorResolver maps an agent extension to its supervisor
type SupervisorResolver interface {
	Resolve(agentID string) (string, bool)
}

// Notifier pushes messages to live UI connections
type Notifier interface {
	SendToAgent(agentID string, message []byte) bool
	SendToSupervisor(supervisorID string, message []byte) bool
}

// Dependencies are the collaborators of a Manager
type Dependencies struct {
	Streaks   StreakTracker
	QAStore   QAStore
	Snapshots SnapshotSaver
	Publisher EndPublisher
	Directory SupervisorResolver
	Notifier  Notifier
}

// Options tunes the end-of-call behavior
type Options struct {
	QAThreshold     float64
	PurgeGrace      time.Duration
	SnapshotWorkers int64
}

// Manager drives the call lifecycle on top of a Store
type Manager struct {
	store  *Store
	deps   Dependencies
	opts   Options
	sem    *semaphore.Weighted
	logger zerolog.Logger
	now    func() time.Time

	// background tracks call-end publishes and snapshot saves
	background sync.WaitGroup
}

// NewManager creates a call manager
func NewManager(store *Store, deps Dependencies, opts Options, logger zerolog.Logger) *Manager {
	if opts.SnapshotWorkers <= 0 {
		opts.SnapshotWorkers = 16
	}
	if opts.QAThreshold == 0 {
		opts.QAThreshold = qa.DefaultThreshold
	}
	return &Manager{
		store:  store,
		deps:   deps,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.SnapshotWorkers),
		logger: logger.With().Str("component", "call_manager").Logger(),
		now:    time.Now,
	}
}

// Store exposes the underlying call store
func (m *Manager) Store() *Store {
	return m.store
}

// Ensure returns the call, creating it when unseen
func (m *Manager) Ensure(callID, agentID string) (types.Call, bool) {
	call, created := m.store.Ensure(callID, agentID)
	if created {
		metrics.Get().RecordCallStarted()
		m.logger.Info().
			Str("call_id", callID).
			Str("agent_id", call.AgentID).
			Msg("call started")
	}
	return call, created
}

// Append adds a finalized entry to an active call
func (m *Manager) Append(callID string, entry types.TranscriptEntry) (types.Call, error) {
	return m.store.Append(callID, entry)
}

// Touch marks activity on a call without adding an entry
func (m *Manager) Touch(callID string) {
	m.store.Touch(callID)
}

// UpdateIdentity revises the identifiers of a call from a metadata frame
func (m *Manager) UpdateIdentity(callID string, id Identity) (types.Call, error) {
	return m.store.UpdateIdentity(callID, id)
}

// Rekey moves a call and its streak counter to a new id
func (m *Manager) Rekey(oldID, newID string) error {
	if err := m.store.Rekey(oldID, newID); err != nil {
		return err
	}
	m.deps.Streaks.Rekey(oldID, newID)
	m.logger.Info().Str("old_call_id", oldID).Str("call_id", newID).Msg("call re-keyed")
	return nil
}

// EndCall ends an active call exactly once: it scores QA, persists the
// result, schedules the purge and hands the end event and snapshot to
// background workers.
func (m *Manager) EndCall(ctx context.Context, callID, reason string) (types.Call, error) {
	call, ok := m.store.MarkEnded(callID, reason, m.now())
	if !ok {
		if _, exists := m.store.Get(callID); !exists {
			return types.Call{}, ErrCallNotFound
		}
		m.logger.Debug().Str("call_id", callID).Str("reason", reason).Msg("duplicate end event ignored")
		return types.Call{}, ErrCallEnded
	}

	m.deps.Streaks.Reset(callID)

	breakdown := qa.Score(call, call.Duration(*call.EndTime))
	score := qa.Overall(breakdown)

	if err := m.deps.QAStore.InsertQAScore(ctx, types.QAScoreRecord{
		CallID:       call.CallID,
		AgentID:      call.AgentID,
		CustomerID:   call.CustomerID,
		OverallScore: score,
		Breakdown:    breakdown,
		CreatedAt:    *call.EndTime,
	}); err != nil {
		m.logger.Error().Err(err).Str("call_id", callID).Msg("failed to store QA score")
	}

	if score < m.opts.QAThreshold {
		m.sendLowQAAlert(call, score, breakdown)
	}

	m.publishEnd(endEvent(call, score))
	m.notifyAgent(call)
	m.saveSnapshot(types.SnapshotOf(call, score, *call.EndTime))

	time.AfterFunc(m.opts.PurgeGrace, func() {
		if m.store.Purge(callID) {
			m.logger.Debug().Str("call_id", callID).Msg("call purged")
		}
	})

	metrics.Get().RecordCallEnded(reason, score)
	m.logger.Info().
		Str("call_id", callID).
		Str("agent_id", call.AgentID).
		Str("reason", reason).
		Float64("qa_score", score).
		Int("messages", call.MessageCount()).
		Dur("duration", call.Duration(*call.EndTime)).
		Msg("call ended")

	return call, nil
}

// EndAll ends every active call with the given reason
func (m *Manager) EndAll(ctx context.Context, reason string) int {
	ended := 0
	for _, id := range m.store.ActiveIDs() {
		if _, err := m.EndCall(ctx, id, reason); err == nil {
			ended++
		}
	}
	return ended
}

// Wait blocks until in-flight publishes and snapshot saves finish or ctx is done
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) sendLowQAAlert(call types.Call, score float64, breakdown types.QABreakdown) {
	metrics.Get().RecordLowQAAlert()

	supervisorID, ok := m.deps.Directory.Resolve(call.Extension)
	if !ok {
		m.logger.Debug().Str("call_id", call.CallID).Float64("qa_score", score).Msg("low QA score, no supervisor mapped")
		return
	}

	data, err := json.Marshal(types.QAAlertMessage{
		Type:           types.MsgTypeSupervisorAlert,
		AlertCategory:  "qa_analysis",
		CallID:         call.CallID,
		Extension:      call.Extension,
		QAScore:        score,
		DetailedScores: breakdown,
		Reason:         fmt.Sprintf("Low QA score: %g/100", score),
		Timestamp:      m.now(),
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal QA alert")
		return
	}

	if m.deps.Notifier.SendToSupervisor(supervisorID, data) {
		m.logger.Info().
			Str("call_id", call.CallID).
			Str("supervisor_id", supervisorID).
			Float64("qa_score", score).
			Msg("low QA alert sent to supervisor")
	}
}

func (m *Manager) notifyAgent(call types.Call) {
	data, err := json.Marshal(types.CallEndedMessage{
		Type:      types.MsgTypeCallEnded,
		CallID:    call.CallID,
		Reason:    call.EndReason,
		Timestamp: *call.EndTime,
	})
	if err != nil {
		return
	}
	m.deps.Notifier.SendToAgent(call.AgentID, data)
}

// publishEnd never holds up EndCall; a slow or unreachable broker only
// delays Wait.
func (m *Manager) publishEnd(event types.CallEndEvent) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := m.deps.Publisher.PublishCallEnd(ctx, event); err != nil {
			m.logger.Error().Err(err).Str("call_id", event.CallID).Msg("failed to publish call end event")
		}
	}()
}

// saveSnapshot persists in the background. When every worker slot is busy
// the snapshot is dropped.
func (m *Manager) saveSnapshot(snap types.CallSnapshot) {
	if !m.sem.TryAcquire(1) {
		metrics.Get().RecordSnapshotSave("dropped")
		m.logger.Warn().Str("call_id", snap.CallID).Msg("snapshot workers busy, snapshot dropped")
		return
	}

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer m.sem.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
		defer cancel()

		if err := m.deps.Snapshots.SaveCallSnapshot(ctx, snap); err != nil {
			metrics.Get().RecordSnapshotSave("error")
			m.logger.Error().Err(err).Str("call_id", snap.CallID).Msg("failed to save call snapshot")
			return
		}
		metrics.Get().RecordSnapshotSave("ok")
	}()
}

func endEvent(call types.Call, score float64) types.CallEndEvent {
	qaScore := score
	transcripts := make(map[types.Speaker][]types.TranscriptEntry, len(types.Speakers))
	for _, speaker := range types.Speakers {
		transcripts[speaker] = call.Transcripts[speaker]
	}
	return types.CallEndEvent{
		CallID:        call.CallID,
		AgentID:       call.AgentID,
		CustomerID:    call.CustomerID,
		Status:        types.CallStatusEnded,
		Reason:        call.EndReason,
		TotalMessages: call.MessageCount(),
		QAScore:       &qaScore,
		Transcripts:   transcripts,
		Timestamp:     *call.EndTime,
	}
}
