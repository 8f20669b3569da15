package api

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/version"
)

var metricsOnce sync.Once

// InitMetrics registers the process-level collectors: build info, uptime
// and the event count. Pipeline collectors live in the metrics package.
// Safe to call more than once; only the first call registers.
func InitMetrics(instance string) {
	metricsOnce.Do(func() {
		start := time.Now()
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "unknown"
		}
		labels := prometheus.Labels{
			"instance_id": instance,
			"host":        hostname,
			"version":     version.Version,
		}

		promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "pcassist_build_info",
			Help:        "Always 1; labels carry the build version and instance",
			ConstLabels: labels,
		}).Set(1)

		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "pcassist_uptime_seconds",
			Help:        "Number of seconds since the process started",
			ConstLabels: labels,
		}, func() float64 { return time.Since(start).Seconds() })

		promauto.NewCounterFunc(prometheus.CounterOpts{
			Name:        "pcassist_events_total",
			Help:        "Total number of events emitted since startup",
			ConstLabels: labels,
		}, func() float64 { return float64(events.TotalCount()) })
	})
}

// metricsHandler serves the default registry in Prometheus text format.
func metricsHandler() http.Handler {
	h := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}
