// Package metrics holds the Prometheus collectors for authentication, sessions and threats.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accessguard_sessions_created_total",
		Help: "Sessions created.",
	})

	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_sessions_ended_total",
			Help: "Sessions ended, by reason.",
		},
		[]string{"reason"},
	)

	threatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_threats_total",
			Help: "Security threats reported.",
		},
		[]string{"type", "severity"},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_escalations_total",
			Help: "Threat threshold crossings that triggered escalation.",
		},
		[]string{"type"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accessguard_grpc_request_duration_seconds",
			Help:    "Unary RPC latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
)

var initOnce sync.Once

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(loginsTotal, sessionsCreated, sessionsEnded, threatsTotal, escalationsTotal, rpcDuration)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func LoginOutcome(outcome string) { loginsTotal.WithLabelValues(outcome).Inc() }

func SessionCreated() { sessionsCreated.Inc() }

func SessionEnded(reason string) { sessionsEnded.WithLabelValues(reason).Inc() }

func ThreatReported(threatType, severity string) {
	threatsTotal.WithLabelValues(threatType, severity).Inc()
}

func Escalated(threatType string) { escalationsTotal.WithLabelValues(threatType).Inc() }

// ObserveRPC records one unary RPC.
func ObserveRPC(method, code string, d time.Duration) {
	rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}
