package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// snapshotPerSpeaker is how many recent entries of each speaker an alert carries
const snapshotPerSpeaker = 10

// AlertStore persists supervisor alerts
type AlertStore interface {
	InsertAlert(ctx context.Context, alert types.SupervisorAlert) (int64, error)
}

// CallState reports whether a call is still live
type CallState interface {
	IsActive(callID string) bool
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

// Options configures the engine
type Options struct {
	Threshold int
	Policy    config.AlertPolicy
}

// Engine tracks consecutive negative customer utterances per call and
// escalates to the agent and the owning supervisor.
type Engine struct {
	mu      sync.Mutex
	streaks map[string]int

	opts      Options
	calls     CallState
	store     AlertStore
	directory SupervisorResolver
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine creates an alert engine
func NewEngine(opts Options, calls CallState, store AlertStore, directory SupervisorResolver, notifier Notifier, logger zerolog.Logger) *Engine {
	if opts.Threshold < 1 {
		opts.Threshold = 3
	}
	if opts.Policy == "" {
		opts.Policy = config.AlertPolicySingle
	}
	return &Engine{
		streaks:   make(map[string]int),
		opts:      opts,
		calls:     calls,
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logger.With().Str("component", "alert_engine").Logger(),
		now:       time.Now,
	}
}

// Observe feeds one customer entry of call into the streak counter. call must
// already contain entry. When the streak triggers an alert, the alert is
// persisted, the agent and supervisor are notified and the alert is returned.
// A persistence error is returned alongside the alert; notices are still sent.
// Entries for a call that has already ended are ignored.
func (e *Engine) Observe(ctx context.Context, call types.Call, entry types.TranscriptEntry) (*types.SupervisorAlert, error) {
	if entry.Speaker != types.SpeakerCustomer {
		return nil, nil
	}

	streak, fire := e.advance(call.CallID, entry.Sentiment.Label)
	if !fire {
		return nil, nil
	}

	alert := e.buildAlert(call, streak)

	var persistErr error
	if id, err := e.store.InsertAlert(ctx, alert); err != nil {
		persistErr = fmt.Errorf("failed to persist supervisor alert: %w", err)
	} else {
		alert.AlertID = id
	}

	delivered := e.notify(call, alert)
	metrics.Get().RecordAlert(string(e.opts.Policy), delivered)

	e.logger.Warn().
		Str("call_id", call.CallID).
		Str("agent_id", call.AgentID).
		Str("supervisor_id", alert.SupervisorID).
		Int("streak", streak).
		Int64("alert_id", alert.AlertID).
		Bool("supervisor_notified", delivered).
		Msg("negative streak alert raised")

	return &alert, persistErr
}

// advance updates the counter and reports whether the policy fires. The
// liveness check runs under e.mu so a concurrent Reset cannot be undone.
func (e *Engine) advance(callID string, label types.SentimentLabel) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.calls.IsActive(callID) {
		delete(e.streaks, callID)
		return 0, false
	}

	if label != types.SentimentNegative {
		delete(e.streaks, callID)
		return 0, false
	}

	e.streaks[callID]++
	streak := e.streaks[callID]

	switch e.opts.Policy {
	case config.AlertPolicyRepeat:
		return streak, streak >= e.opts.Threshold
	default:
		return streak, streak == e.opts.Threshold
	}
}

func (e *Engine) buildAlert(call types.Call, streak int) types.SupervisorAlert {
	recent := call.Recent(snapshotPerSpeaker)

	var sum float64
	var customer, agent int
	for _, t := range recent {
		switch t.Speaker {
		case types.SpeakerCustomer:
			customer++
			sum += t.Sentiment.Score
		case types.SpeakerAgent:
			agent++
		}
	}
	var avg float64
	if customer > 0 {
		avg = types.Round(sum/float64(customer), 3)
	}

	supervisorID, _ := e.directory.Resolve(call.Extension)

	return types.SupervisorAlert{
		CallID:               call.CallID,
		AgentID:              call.AgentID,
		SupervisorID:         supervisorID,
		AlertType:            types.AlertTypeNegativeStreak,
		StreakCount:          streak,
		Reason:               fmt.Sprintf("Customer expressed %d consecutive negative statements - immediate supervisor review required", streak),
		AvgCustomerSentiment: avg,
		RecentTranscripts:    recent,
		Metadata: types.AlertMetadata{
			TotalTranscripts: len(recent),
			CustomerMessages: customer,
			AgentMessages:    agent,
			CallStatus:       call.Status,
		},
		Status:    types.AlertStatusActive,
		CreatedAt: e.now(),
	}
}

// notify sends the agent notice and, when the supervisor is connected, the
// detailed alert. It reports whether the supervisor received it.
func (e *Engine) notify(call types.Call, alert types.SupervisorAlert) bool {
	notice, err := json.Marshal(types.AgentAlertNotice{
		Type:      types.MsgTypeSupervisorAlert,
		CallID:    call.CallID,
		Extension: call.Extension,
		Reason:    fmt.Sprintf("Customer said %d negative statements in a row - supervisor notified", alert.StreakCount),
		Streak:    alert.StreakCount,
		Timestamp: alert.CreatedAt,
	})
	if err == nil {
		e.notifier.SendToAgent(call.AgentID, notice)
	}

	if alert.SupervisorID == "" {
		e.logger.Debug().Str("extension", call.Extension).Msg("no supervisor mapped for extension")
		return false
	}

	history := make([]types.AlertTranscript, 0, len(alert.RecentTranscripts))
	for _, t := range alert.RecentTranscripts {
		history = append(history, types.AlertTranscript{
			Speaker:   t.Speaker,
			Text:      t.Text,
			Sentiment: t.Sentiment,
			Timestamp: t.Timestamp,
		})
	}

	detailed, err := json.Marshal(types.SupervisorAlertMessage{
		Type:           types.MsgTypeSupervisorAlert,
		AlertID:        alert.AlertID,
		CallID:         call.CallID,
		Extension:      call.Extension,
		Reason:         fmt.Sprintf("Negative streak (%d) detected - review call immediately", alert.StreakCount),
		NegativeStreak: alert.StreakCount,
		Transcripts:    history,
		Timestamp:      alert.CreatedAt,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to marshal supervisor alert")
		return false
	}
	return e.notifier.SendToSupervisor(alert.SupervisorID, detailed)
}

// Reset discards the counter of an ended call
func (e *Engine) Reset(callID string) {
	e.mu.Lock()
	delete(e.streaks, callID)
	e.mu.Unlock()
}

// Rekey moves the counter when a call is renamed
func (e *Engine) Rekey(oldID, newID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.streaks[oldID]; ok {
		e.streaks[newID] = n
		delete(e.streaks, oldID)
	}
}

// Streak returns the current consecutive negative count of a call
func (e *Engine) Streak(callID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaks[callID]
}
