package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

var (
	callCurrent atomic.Int32

	promCallCurrent      prometheus.Gauge
	promCallCounter      *prometheus.CounterVec
	promCallSetupTime    *prometheus.HistogramVec
	promCallDuration     prometheus.Histogram
	promCandidateCounter *prometheus.CounterVec
	promSessionState     *prometheus.GaugeVec
)

func initCallStats(clientID string) {
	promCallCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "call",
		Name:        "current",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	})
	promCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "call",
		Name:        "total",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	}, []string{"role", "status"})
	promCallSetupTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "call",
		Name:        "setup_time_ms",
		ConstLabels: prometheus.Labels{"client_id": clientID},
		Buckets:     []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"role"})
	promCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "call",
		Name:        "duration_seconds",
		ConstLabels: prometheus.Labels{"client_id": clientID},
		Buckets:     []float64{5, 30, 60, 300, 900, 1800, 3600},
	})
	promCandidateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "ice",
		Name:        "candidates",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	}, []string{"direction", "verdict"})
	promSessionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "call",
		Name:        "state",
		ConstLabels: prometheus.Labels{"client_id": clientID},
		Help:        "1 for the state the call session is currently in.",
	}, []string{"state"})

	prometheus.MustRegister(promCallCurrent)
	prometheus.MustRegister(promCallCounter)
	prometheus.MustRegister(promCallSetupTime)
	prometheus.MustRegister(promCallDuration)
	prometheus.MustRegister(promCandidateCounter)
	prometheus.MustRegister(promSessionState)
}

func CallStarted(role string) {
	if !initialized.Load() {
		return
	}
	promCallCounter.WithLabelValues(role, "attempt").Inc()
}

func CallActive(role string, setupTime time.Duration) {
	if !initialized.Load() {
		return
	}
	promCallCurrent.Set(float64(callCurrent.Inc()))
	promCallCounter.WithLabelValues(role, "active").Inc()
	promCallSetupTime.WithLabelValues(role).Observe(float64(setupTime.Milliseconds()))
}

func CallEnded(role string, wasActive bool, duration time.Duration, failed bool) {
	if !initialized.Load() {
		return
	}
	if wasActive {
		promCallCurrent.Set(float64(callCurrent.Dec()))
		promCallDuration.Observe(duration.Seconds())
	}
	if failed {
		promCallCounter.WithLabelValues(role, "failed").Inc()
	}
}

func RecordCandidate(direction string, verdict string) {
	if !initialized.Load() {
		return
	}
	promCandidateCounter.WithLabelValues(direction, verdict).Inc()
}

func SetSessionState(prev string, next string) {
	if !initialized.Load() {
		return
	}
	if prev != "" {
		promSessionState.WithLabelValues(prev).Set(0)
	}
	promSessionState.WithLabelValues(next).Set(1)
}
