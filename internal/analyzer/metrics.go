package analyzer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the analyzer pipeline.
type Metrics struct {
	EventsProcessed   prometheus.Counter
	EventsMalformed   prometheus.Counter
	EventsFiltered    prometheus.Counter
	AlertsRaised      *prometheus.CounterVec
	DLPMatches        *prometheus.CounterVec
	QuarantineActions *prometheus.CounterVec
	ProcessDuration   prometheus.Histogram
	GraphNodes        prometheus.Gauge
	GraphEdges        prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics on the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hunter_events_processed_total",
			Help: "Flow events accepted and processed by the analyzer",
		}),
		EventsMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hunter_events_malformed_total",
			Help: "Events rejected at normalization",
		}),
		EventsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hunter_events_filtered_total",
			Help: "Events dropped by the privacy-mode capture filter",
		}),
		AlertsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_alerts_raised_total",
			Help: "Alerts raised by the analyzer",
		}, []string{"severity"}),
		DLPMatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_dlp_matches_total",
			Help: "DLP rule hits on payload samples",
		}, []string{"rule"}),
		QuarantineActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_quarantine_actions_total",
			Help: "Quarantine registry transitions",
		}, []string{"trigger", "status"}),
		ProcessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hunter_event_process_duration_seconds",
			Help:    "Wall time to run one event through pipeline steps 1-7",
			Buckets: prometheus.DefBuckets,
		}),
		GraphNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hunter_graph_nodes",
			Help: "Nodes currently in the communication graph",
		}),
		GraphEdges: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hunter_graph_edges",
			Help: "Edges currently in the communication graph",
		}),
	}
}
