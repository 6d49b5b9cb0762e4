package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "monti_callmonitor"

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	// WebSocket metrics
	connectionsTotal  *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
	routingRejections prometheus.Counter

	// Pipeline metrics
	transcriptsTotal *prometheus.CounterVec
	partialsTotal    prometheus.Counter
	pipelineDuration prometheus.Histogram
	ingestedTotal    *prometheus.CounterVec

	// Call lifecycle metrics
	activeCalls   prometheus.Gauge
	callsStarted  prometheus.Counter
	callsEnded    *prometheus.CounterVec
	qaScores      prometheus.Histogram
	alertsTotal   *prometheus.CounterVec
	lowQAAlerts   prometheus.Counter
	snapshotSaves *prometheus.CounterVec

	// Bus metrics
	busPublishTotal  *prometheus.CounterVec
	summariesTotal   prometheus.Counter
	directoryEntries prometheus.Gauge
	directoryLoads   *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connections_total",
			Help:      "WebSocket connections accepted, by role",
		}, []string{"role"}),
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_active_connections",
			Help:      "Currently open WebSocket connections, by role",
		}, []string{"role"}),
		routingRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_routing_rejections_total",
			Help:      "Connections closed because no identifier could be resolved",
		}),
		transcriptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Final utterances processed, by speaker and sentiment label",
		}, []string{"speaker", "label"}),
		partialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_transcripts_total",
			Help:      "Partial utterances forwarded to agent UIs",
		}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent scoring and annotating a final utterance",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls currently held in memory with status active",
		}),
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_started_total",
			Help:      "Calls created",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Calls ended, by reason",
		}, []string{"reason"}),
		qaScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "qa_score",
			Help:      "Overall QA score of ended calls",
			Buckets:   []float64{20, 40, 50, 60, 70, 80, 90, 100},
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_alerts_total",
			Help:      "Negative-streak alerts raised, by policy and delivery outcome",
		}, []string{"policy", "delivered"}),
		lowQAAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_qa_alerts_total",
			Help:      "Low QA score notifications sent to supervisors",
		}),
		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Call snapshot saves, by result",
		}, []string{"result"}),
		busPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_total",
			Help:      "Bus publish attempts, by event kind and result",
		}, []string{"kind", "result"}),
		summariesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_received_total",
			Help:      "Call summaries consumed from the bus",
		}),
		directoryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_entries",
			Help:      "Extensions in the current supervisor directory snapshot",
		}),
		directoryLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_loads_total",
			Help:      "Supervisor directory reloads, by result",
		}, []string{"result"}),
		ingestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_utterances_total",
			Help:      "Utterances received on the internal HTTP ingest endpoint, by result",
		}, []string{"result"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by path and status",
		}, []string{"path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsTotal,
		m.activeConnections,
		m.routingRejections,
		m.transcriptsTotal,
		m.partialsTotal,
		m.pipelineDuration,
		m.ingestedTotal,
		m.activeCalls,
		m.callsStarted,
		m.callsEnded,
		m.qaScores,
		m.alertsTotal,
		m.lowQAAlerts,
		m.snapshotSaves,
		m.busPublishTotal,
		m.summariesTotal,
		m.directoryEntries,
		m.directoryLoads,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// RecordConnect records a new WebSocket connection for the given role
func (m *Metrics) RecordConnect(role string) {
	m.connectionsTotal.WithLabelValues(role).Inc()
	m.activeConnections.WithLabelValues(role).Inc()
}

// RecordDisconnect records a closed WebSocket connection for the given role
func (m *Metrics) RecordDisconnect(role string) {
	m.activeConnections.WithLabelValues(role).Dec()
}

// RecordRoutingRejection counts a connection closed for missing identifiers
func (m *Metrics) RecordRoutingRejection() {
	m.routingRejections.Inc()
}

// RecordTranscript records a processed final utterance
func (m *Metrics) RecordTranscript(speaker, label string, took time.Duration) {
	m.transcriptsTotal.WithLabelValues(speaker, label).Inc()
	m.pipelineDuration.Observe(took.Seconds())
}

// RecordPartial records a forwarded partial utterance
func (m *Metrics) RecordPartial() {
	m.partialsTotal.Inc()
}

// RecordIngest records an utterance posted to the ingest endpoint ("ok", "invalid", "rejected")
func (m *Metrics) RecordIngest(result string) {
	m.ingestedTotal.WithLabelValues(result).Inc()
}

// RecordCallStarted increments the call counters
func (m *Metrics) RecordCallStarted() {
	m.callsStarted.Inc()
	m.activeCalls.Inc()
}

// RecordCallEnded records an ended call and its QA score
func (m *Metrics) RecordCallEnded(reason string, qaScore float64) {
	m.callsEnded.WithLabelValues(reason).Inc()
	m.activeCalls.Dec()
	m.qaScores.Observe(qaScore)
}

// RecordAlert records a raised negative-streak alert
func (m *Metrics) RecordAlert(policy string, delivered bool) {
	d := "false"
	if delivered {
		d = "true"
	}
	m.alertsTotal.WithLabelValues(policy, d).Inc()
}

// RecordLowQAAlert records a low QA notification
func (m *Metrics) RecordLowQAAlert() {
	m.lowQAAlerts.Inc()
}

// RecordSnapshotSave records the outcome of a snapshot save ("ok", "error", "dropped")
func (m *Metrics) RecordSnapshotSave(result string) {
	m.snapshotSaves.WithLabelValues(result).Inc()
}

// RecordBusPublish records a publish attempt
func (m *Metrics) RecordBusPublish(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.busPublishTotal.WithLabelValues(kind, result).Inc()
}

// RecordSummaryReceived counts a consumed call summary
func (m *Metrics) RecordSummaryReceived() {
	m.summariesTotal.Inc()
}

// RecordDirectoryLoad records a directory reload and the resulting size
func (m *Metrics) RecordDirectoryLoad(entries int, err error) {
	if err != nil {
		m.directoryLoads.WithLabelValues("error").Inc()
		return
	}
	m.directoryLoads.WithLabelValues("ok").Inc()
	m.directoryEntries.Set(float64(entries))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(path, status).Inc()
	m.httpRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}
