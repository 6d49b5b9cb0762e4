package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/auth"
	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeEnder struct {
	store *calls.Store
}

func (e storeEnder) EndCall(_ context.Context, callID, reason string) (types.Call, error) {
	c, ok := e.store.MarkEnded(callID, reason, time.Now())
	if ok {
		return c, nil
	}
	if _, exists := e.store.Get(callID); exists {
		return types.Call{}, calls.ErrCallEnded
	}
	return types.Call{}, calls.ErrCallNotFound
}

type fixedStreaks map[string]int

func (s fixedStreaks) Streak(callID string) int { return s[callID] }

type fakeSnapshots struct {
	snaps []types.CallSnapshot
	err   error
	agent string
	limit int
}

func (f *fakeSnapshots) ListAgentSnapshots(_ context.Context, agentID string, limit int) ([]types.CallSnapshot, error) {
	f.agent = agentID
	f.limit = limit
	return f.snaps, f.err
}

func newRouter(store *calls.Store, alerts AlertRepository, snaps SnapshotReader) http.Handler {
	logger := zerolog.Nop()
	callsHandler := NewCallsHandler(store, storeEnder{store}, fixedStreaks{"c-1": 2}, logger)
	alertsHandler := NewAlertsHandler(alerts, logger)
	history := NewAgentHistoryHandler(snaps, logger)

	r := chi.NewRouter()
	r.Get("/api/calls", callsHandler.List)
	r.Get("/api/calls/{callId}", callsHandler.Get)
	r.Post("/api/calls/{callId}/end", callsHandler.End)
	r.Get("/api/supervisors/{supervisorId}/alerts", alertsHandler.List)
	r.Post("/api/alerts/{alertId}/ack", alertsHandler.Acknowledge)
	r.Get("/api/agents/{agentId}/calls", history.GetCalls)
	return r
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestCalls_ListAndGet(t *testing.T) {
	store := calls.NewStore()
	store.Ensure("c-1", "1001")
	store.Ensure("c-2", "1002")
	_, err := store.Append("c-1", types.TranscriptEntry{Text: "hi", Speaker: types.SpeakerCustomer})
	require.NoError(t, err)
	store.MarkEnded("c-2", calls.ReasonManual, time.Now())

	h := newRouter(store, storage.NewMemoryStore(), &fakeSnapshots{})

	w := do(t, h, http.MethodGet, "/api/calls?status=active")
	require.Equal(t, http.StatusOK, w.Code)
	var list []CallSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "c-1", list[0].CallID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, 2, list[0].NegativeStreak)

	w = do(t, h, http.MethodGet, "/api/calls?agentId=1002")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, types.CallStatusEnded, list[0].Status)

	w = do(t, h, http.MethodGet, "/api/calls?status=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/calls/c-1")
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "c-1", detail["callId"])
	assert.Equal(t, float64(2), detail["negativeStreak"])
	assert.NotNil(t, detail["transcripts"])

	w = do(t, h, http.MethodGet, "/api/calls/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalls_End(t *testing.T) {
	store := calls.NewStore()
	store.Ensure("c-1", "1001")
	h := newRouter(store, storage.NewMemoryStore(), &fakeSnapshots{})

	w := do(t, h, http.MethodPost, "/api/calls/c-1/end")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, calls.ReasonSupervisorEnd, body["reason"])

	w = do(t, h, http.MethodPost, "/api/calls/c-1/end")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/calls/missing/end")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlerts_ListAndAcknowledge(t *testing.T) {
	mem := storage.NewMemoryStore()
	ctx := context.Background()
	for _, sup := range []string{"sup1", "sup1", "sup2"} {
		_, err := mem.InsertAlert(ctx, types.SupervisorAlert{
			CallID:       "c-1",
			AgentID:      "1001",
			SupervisorID: sup,
			AlertType:    types.AlertTypeNegativeStreak,
			StreakCount:  3,
			Status:       types.AlertStatusActive,
			CreatedAt:    time.Now(),
		})
		require.NoError(t, err)
	}
	h := newRouter(calls.NewStore(), mem, &fakeSnapshots{})

	w := do(t, h, http.MethodGet, "/api/supervisors/SUP1/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	var alerts []types.SupervisorAlert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 2)
	assert.Greater(t, alerts[0].AlertID, alerts[1].AlertID, "newest first")

	w = do(t, h, http.MethodPost, "/api/alerts/"+itoa(alerts[0].AlertID)+"/ack")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/supervisors/sup1/alerts?status=acknowledged")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].AcknowledgedBy)
	assert.Equal(t, "api", *alerts[0].AcknowledgedBy)

	w = do(t, h, http.MethodGet, "/api/supervisors/sup1/alerts?limit=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	assert.Len(t, alerts, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/supervisors/sup1/alerts?status=open").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/supervisors/sup1/alerts?limit=x").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/alerts/abc/ack").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/alerts/999/ack").Code)
}

func TestAlerts_AcknowledgedByUser(t *testing.T) {
	mem := storage.NewMemoryStore()
	id, err := mem.InsertAlert(context.Background(), types.SupervisorAlert{SupervisorID: "sup1", Status: types.AlertStatusActive})
	require.NoError(t, err)

	h := NewAlertsHandler(mem, zerolog.Nop())
	r := chi.NewRouter()
	r.Post("/api/alerts/{alertId}/ack", h.Acknowledge)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+itoa(id)+"/ack", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, &auth.Claims{Email: "jane@example.com"}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	alerts, err := mem.ListAlerts(context.Background(), "sup1", types.AlertStatusAcknowledged, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "jane@example.com", *alerts[0].AcknowledgedBy)
}

func TestAgentHistory(t *testing.T) {
	snaps := &fakeSnapshots{snaps: []types.CallSnapshot{{AgentID: "1001", CallID: "c-9", QAScore: 88}}}
	h := newRouter(calls.NewStore(), storage.NewMemoryStore(), snaps)

	w := do(t, h, http.MethodGet, "/api/agents/1001/calls?limit=500")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1001", snaps.agent)
	assert.Equal(t, maxHistoryLimit, snaps.limit)

	var got []types.CallSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "c-9", got[0].CallID)

	snaps.snaps = nil
	w = do(t, h, http.MethodGet, "/api/agents/1001/calls")
	assert.JSONEq(t, "[]", w.Body.String())
	assert.Equal(t, defaultHistoryLimit, snaps.limit)

	snaps.err = errors.New("dynamo down")
	w = do(t, h, http.MethodGet, "/api/agents/1001/calls")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeCounter struct{}

func (fakeCounter) AgentCount() int      { return 3 }
func (fakeCounter) SupervisorCount() int { return 1 }

type fakeReloader struct{ err error }

func (f fakeReloader) Reload(context.Context) error { return f.err }

type fakeSizer int

func (s fakeSizer) Len() int { return int(s) }

func TestAdmin_StatusAndReload(t *testing.T) {
	store := calls.NewStore()
	store.Ensure("c-1", "1001")

	h := NewAdminHandler(fakeCounter{}, store, fakeReloader{}, fakeSizer(12), zerolog.Nop())

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/api/admin/status", nil))
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 3, status.AgentConnections)
	assert.Equal(t, 1, status.SupervisorConnections)
	assert.Equal(t, 1, status.ActiveCalls)
	assert.Equal(t, 12, status.DirectoryEntries)

	w = httptest.NewRecorder()
	h.ReloadDirectory(w, httptest.NewRequest(http.MethodPost, "/api/admin/directory/reload", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entries":12}`, w.Body.String())

	failing := NewAdminHandler(fakeCounter{}, store, fakeReloader{err: errors.New("db down")}, fakeSizer(0), zerolog.Nop())
	w = httptest.NewRecorder()
	failing.ReloadDirectory(w, httptest.NewRequest(http.MethodPost, "/api/admin/directory/reload", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
