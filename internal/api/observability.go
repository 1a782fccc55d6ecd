package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-player labels).
var (
	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_turn_duration_seconds",
		Help:    "Time spent processing one simulation turn",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	shipCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_ship_count",
		Help: "Live ships across all players",
	})

	planetCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_planet_count",
		Help: "Live planets",
	})

	// Bounded label values: "attack", "collision", "desertion"
	simEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_events_total",
		Help: "Simulation events resolved",
	}, []string{"type"})

	replayBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_bytes_written_total",
		Help: "Compressed replay bytes written to disk",
	})

	// Bounded label values: "rate_limit", "ws_limit"
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by the rate limiters",
	}, []string{"reason"})
)

// RecordTurn records one turn's processing time.
func RecordTurn(duration time.Duration) {
	turnDuration.Observe(duration.Seconds())
}

// UpdateEntityCounts updates the live entity gauges.
func UpdateEntityCounts(ships, planets int) {
	shipCount.Set(float64(ships))
	planetCount.Set(float64(planets))
}

// CountSimEvent increments the event counter.
// eventType must be one of: "attack", "collision", "desertion".
func CountSimEvent(eventType string) {
	simEvents.WithLabelValues(eventType).Inc()
}

// AddReplayBytes records replay output volume.
func AddReplayBytes(n int64) {
	replayBytes.Add(float64(n))
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "ws_limit".
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // MUST stay on localhost in production
}

// DefaultObservabilityConfig returns safe defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer starts the internal observability server with pprof and
// prometheus endpoints. It must bind to localhost only unless explicitly
// overridden via ALLOW_DEBUG_EXTERNAL.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("debug server disabled")
		return nil
	}

	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("debug server forced to localhost")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		log.Printf("debug server on %s (pprof, metrics)", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Printf("debug server error: %v", err)
		}
	}()

	return nil
}
