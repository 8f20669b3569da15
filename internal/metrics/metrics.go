// Package metrics holds the Prometheus collectors for every pipeline stage.
// Collectors register with the default registry; the api package serves them
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadFailures counts absorbed per-tick read problems.
	// Labels: "unavailable", "malformed"
	ReadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcassist_reader_failures_total",
		Help: "Per-tick reads that returned no usable data",
	}, []string{"kind"})

	Polls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcassist_detector_polls_total",
		Help: "Detector polls against the process reader",
	})

	Snapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcassist_detector_snapshots_total",
		Help: "Board snapshots emitted by the detector",
	})

	Predictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcassist_bag_predictions_total",
		Help: "Snapshots extended with a predicted hidden piece",
	})

	// Phase is 1 for the detector's current phase and 0 for the others.
	Phase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pcassist_detector_phase",
		Help: "Current detector phase",
	}, []string{"phase"})

	// Handoff counts values put on a hand-off and values replaced before
	// being taken. Labels: "queue" (snapshots, payloads), "result" (put, dropped)
	Handoff = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcassist_handoff_total",
		Help: "Hand-off queue activity",
	}, []string{"queue", "result"})

	// Searches counts oracle invocations by outcome.
	// Labels: "solved", "unsolvable", "error"
	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcassist_solver_searches_total",
		Help: "Search oracle invocations by outcome",
	}, []string{"result"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pcassist_solver_search_duration_seconds",
		Help:    "Time spent in the search oracle per snapshot",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// Broadcasts counts deduplicator decisions.
	// Labels: "payload", "cleared", "suppressed"
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcassist_overlay_broadcasts_total",
		Help: "Deduplicator decisions per snapshot",
	}, []string{"result"})

	Frames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcassist_overlay_frames_total",
		Help: "Overlay frame ticks",
	})

	// SinkErrors counts failed deliveries to overlay sinks and the event store.
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcassist_sink_errors_total",
		Help: "Failed deliveries to overlay sinks and the event store",
	}, []string{"sink"})

	MQTTConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pcassist_mqtt_connected",
		Help: "Whether the MQTT broker is connected (1) or not (0)",
	})

	PostgresConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pcassist_postgres_connected",
		Help: "Whether PostgreSQL is connected (1) or not (0)",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pcassist_ws_clients",
		Help: "Number of active WebSocket client connections",
	})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pcassist_event_subscribers",
		Help: "Live event log subscribers",
	})

	// EventDrops counts events a slow subscriber missed.
	EventDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcassist_event_subscriber_drops_total",
		Help: "Events not delivered to a subscriber whose buffer was full",
	})

	// EventStoreDrops counts events not persisted because the store writer
	// had fallen behind.
	EventStoreDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcassist_event_store_drops_total",
		Help: "Events dropped because the event store queue was full",
	})
)

// SetPhase marks name as the current phase.
func SetPhase(name string, all []string) {
	for _, p := range all {
		if p == name {
			Phase.WithLabelValues(p).Set(1)
		} else {
			Phase.WithLabelValues(p).Set(0)
		}
	}
}

// Bool converts a flag to a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
