package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	alerts []types.SupervisorAlert
	err    error
}

func (s *fakeStore) InsertAlert(_ context.Context, alert types.SupervisorAlert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.alerts = append(s.alerts, alert)
	return int64(len(s.alerts)), nil
}

type fakeDirectory map[string]string

func (d fakeDirectory) Resolve(agentID string) (string, bool) {
	sup, ok := d[types.NormalizeID(agentID)]
	return sup, ok
}

type fakeCalls struct {
	mu    sync.Mutex
	ended map[string]bool
}

func (c *fakeCalls) IsActive(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.ended[callID]
}

func (c *fakeCalls) end(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended == nil {
		c.ended = map[string]bool{}
	}
	c.ended[callID] = true
}

type fakeNotifier struct {
	mu          sync.Mutex
	agent       [][]byte
	supervisor  [][]byte
	supervisors map[string]bool
}

func (n *fakeNotifier) SendToAgent(_ string, message []byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.agent = append(n.agent, message)
	return true
}

func (n *fakeNotifier) SendToSupervisor(supervisorID string, message []byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.supervisors[supervisorID] {
		return false
	}
	n.supervisor = append(n.supervisor, message)
	return true
}

type harness struct {
	engine   *Engine
	calls    *fakeCalls
	store    *fakeStore
	notifier *fakeNotifier
	call     *types.Call
}

func newHarness(policy config.AlertPolicy) *harness {
	store := &fakeStore{}
	notifier := &fakeNotifier{supervisors: map[string]bool{"sup1": true}}
	state := &fakeCalls{}
	engine := NewEngine(Options{Threshold: 3, Policy: policy}, state, store, fakeDirectory{"1001": "sup1"}, notifier, zerolog.Nop())
	return &harness{
		engine:   engine,
		calls:    state,
		store:    store,
		notifier: notifier,
		call:     types.NewCall("call-1", "1001", time.Now()),
	}
}

// say appends a customer utterance with the given score and observes it
func (h *harness) say(t *testing.T, speaker types.Speaker, score float64) *types.SupervisorAlert {
	t.Helper()
	entry := types.TranscriptEntry{
		Speaker:   speaker,
		Text:      "utterance",
		Sentiment: types.NewSentiment(score),
		Timestamp: time.Now(),
	}
	h.call.Transcripts[speaker] = append(h.call.Transcripts[speaker], entry)
	alert, err := h.engine.Observe(context.Background(), h.call.Clone(), entry)
	require.NoError(t, err)
	return alert
}

func TestEngine_SinglePolicyFiresOnce(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)

	var fired []*types.SupervisorAlert
	for i := 0; i < 5; i++ {
		if a := h.say(t, types.SpeakerCustomer, -0.6); a != nil {
			fired = append(fired, a)
		}
	}

	require.Len(t, fired, 1)
	assert.Equal(t, 3, fired[0].StreakCount)
	assert.Equal(t, int64(1), fired[0].AlertID)
	assert.Equal(t, "sup1", fired[0].SupervisorID)
	assert.Equal(t, 5, h.engine.Streak("call-1"))
	assert.Len(t, h.store.alerts, 1)
	assert.Len(t, h.notifier.agent, 1)
	assert.Len(t, h.notifier.supervisor, 1)
}

func TestEngine_SinglePolicyRearmsAfterReset(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)

	for i := 0; i < 3; i++ {
		h.say(t, types.SpeakerCustomer, -0.6)
	}
	assert.Nil(t, h.say(t, types.SpeakerCustomer, 0.5))
	assert.Equal(t, 0, h.engine.Streak("call-1"))

	var again *types.SupervisorAlert
	for i := 0; i < 3; i++ {
		again = h.say(t, types.SpeakerCustomer, -0.6)
	}
	require.NotNil(t, again)
	assert.Len(t, h.store.alerts, 2)
}

func TestEngine_RepeatPolicyFiresPastThreshold(t *testing.T) {
	h := newHarness(config.AlertPolicyRepeat)

	var streaks []int
	for i := 0; i < 5; i++ {
		if a := h.say(t, types.SpeakerCustomer, -0.6); a != nil {
			streaks = append(streaks, a.StreakCount)
		}
	}

	assert.Equal(t, []int{3, 4, 5}, streaks)
	assert.Len(t, h.store.alerts, 3)
}

func TestEngine_StreakIsNegativeSuffix(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)
	scores := []float64{-0.5, -0.5, 0.0, -0.5, 0.7, -0.5, -0.5}

	for i, s := range scores {
		h.say(t, types.SpeakerCustomer, s)

		expected := 0
		for j := i; j >= 0 && types.LabelFor(scores[j]) == types.SentimentNegative; j-- {
			expected++
		}
		assert.Equal(t, expected, h.engine.Streak("call-1"), "after utterance %d", i)
	}
}

func TestEngine_AgentEntriesIgnored(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)

	h.say(t, types.SpeakerCustomer, -0.6)
	h.say(t, types.SpeakerAgent, 0.9)
	h.say(t, types.SpeakerCustomer, -0.6)

	assert.Equal(t, 2, h.engine.Streak("call-1"))
}

func TestEngine_AlertPayloads(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)
	h.call.Extension = "1001"

	h.say(t, types.SpeakerAgent, 0.2)
	h.say(t, types.SpeakerCustomer, -0.5)
	h.say(t, types.SpeakerCustomer, -0.6)
	alert := h.say(t, types.SpeakerCustomer, -0.7)
	require.NotNil(t, alert)

	assert.Equal(t, types.AlertTypeNegativeStreak, alert.AlertType)
	assert.Equal(t, "Customer expressed 3 consecutive negative statements - immediate supervisor review required", alert.Reason)
	assert.Equal(t, -0.6, alert.AvgCustomerSentiment)
	assert.Equal(t, types.AlertMetadata{TotalTranscripts: 4, CustomerMessages: 3, AgentMessages: 1, CallStatus: types.CallStatusActive}, alert.Metadata)

	var notice types.AgentAlertNotice
	require.NoError(t, json.Unmarshal(h.notifier.agent[0], &notice))
	assert.Equal(t, types.MsgTypeSupervisorAlert, notice.Type)
	assert.Equal(t, "Customer said 3 negative statements in a row - supervisor notified", notice.Reason)
	assert.Equal(t, 3, notice.Streak)

	var detailed types.SupervisorAlertMessage
	require.NoError(t, json.Unmarshal(h.notifier.supervisor[0], &detailed))
	assert.Equal(t, "Negative streak (3) detected - review call immediately", detailed.Reason)
	assert.Equal(t, int64(1), detailed.AlertID)
	assert.Equal(t, "1001", detailed.Extension)
	assert.Len(t, detailed.Transcripts, 4)
}

func TestEngine_PersistFailureStillNotifies(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)
	h.store.err = errors.New("db down")

	var alert *types.SupervisorAlert
	var err error
	for i := 0; i < 3; i++ {
		entry := types.TranscriptEntry{Speaker: types.SpeakerCustomer, Text: "bad", Sentiment: types.NewSentiment(-0.8), Timestamp: time.Now()}
		h.call.Transcripts[types.SpeakerCustomer] = append(h.call.Transcripts[types.SpeakerCustomer], entry)
		alert, err = h.engine.Observe(context.Background(), h.call.Clone(), entry)
	}

	require.Error(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, int64(0), alert.AlertID)
	assert.Len(t, h.notifier.agent, 1)
	assert.Len(t, h.notifier.supervisor, 1)
}

func TestEngine_UnmappedExtensionSkipsSupervisor(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)
	h.call = types.NewCall("call-2", "2002", time.Now())

	var alert *types.SupervisorAlert
	for i := 0; i < 3; i++ {
		alert = h.say(t, types.SpeakerCustomer, -0.6)
	}

	require.NotNil(t, alert)
	assert.Empty(t, alert.SupervisorID)
	assert.Len(t, h.notifier.agent, 1)
	assert.Empty(t, h.notifier.supervisor)
}

func TestEngine_ResetAndRekey(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)
	h.say(t, types.SpeakerCustomer, -0.6)
	h.say(t, types.SpeakerCustomer, -0.6)

	h.engine.Rekey("call-1", "call-9")
	assert.Equal(t, 0, h.engine.Streak("call-1"))
	assert.Equal(t, 2, h.engine.Streak("call-9"))

	h.engine.Reset("call-9")
	assert.Equal(t, 0, h.engine.Streak("call-9"))
}

func TestEngine_EndedCallIsIgnored(t *testing.T) {
	h := newHarness(config.AlertPolicySingle)

	h.say(t, types.SpeakerCustomer, -0.6)
	h.say(t, types.SpeakerCustomer, -0.6)
	require.Equal(t, 2, h.engine.Streak("call-1"))

	// the call ends and its counter is reset before a late result arrives
	h.calls.end("call-1")
	h.engine.Reset("call-1")

	assert.Nil(t, h.say(t, types.SpeakerCustomer, -0.6))
	assert.Equal(t, 0, h.engine.Streak("call-1"), "no counter is left behind")
	assert.Empty(t, h.store.alerts)
	assert.Empty(t, h.notifier.agent)
}
