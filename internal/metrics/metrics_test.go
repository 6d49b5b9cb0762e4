package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestConnections(t *testing.T) {
	m := newMetrics()

	m.RecordConnect("agent")
	m.RecordConnect("agent")
	m.RecordConnect("supervisor")
	m.RecordDisconnect("agent")
	m.RecordRoutingRejection()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsTotal.WithLabelValues("agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections.WithLabelValues("agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections.WithLabelValues("supervisor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routingRejections))
}

func TestCallLifecycle(t *testing.T) {
	m := newMetrics()

	m.RecordCallStarted()
	m.RecordCallStarted()
	m.RecordCallEnded("supervisor_end", 72.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.callsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callsEnded.WithLabelValues("supervisor_end")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.qaScores))
}

func TestTranscriptsAndAlerts(t *testing.T) {
	m := newMetrics()

	m.RecordTranscript("Customer", "negative", 3*time.Millisecond)
	m.RecordPartial()
	m.RecordAlert("single", true)
	m.RecordAlert("single", false)
	m.RecordLowQAAlert()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transcriptsTotal.WithLabelValues("Customer", "negative")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.partialsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsTotal.WithLabelValues("single", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsTotal.WithLabelValues("single", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lowQAAlerts))
}

func TestBusAndDirectory(t *testing.T) {
	m := newMetrics()

	m.RecordBusPublish("transcript", nil)
	m.RecordBusPublish("transcript", errors.New("channel closed"))
	m.RecordSummaryReceived()
	m.RecordDirectoryLoad(12, nil)
	m.RecordDirectoryLoad(0, errors.New("db down"))
	m.RecordSnapshotSave("dropped")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.busPublishTotal.WithLabelValues("transcript", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busPublishTotal.WithLabelValues("transcript", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.summariesTotal))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.directoryEntries), "failed reload keeps the last size")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.directoryLoads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotSaves.WithLabelValues("dropped")))
}

func TestHandler(t *testing.T) {
	m := newMetrics()
	m.RecordHTTPRequest("/api/calls", "200", 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `monti_callmonitor_http_requests_total{path="/api/calls",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
