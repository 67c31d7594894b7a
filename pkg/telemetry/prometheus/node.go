package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	slicecallNamespace string = "slicecall"
)

var (
	initialized atomic.Bool

	MessageCounter *prometheus.CounterVec
)

// Init registers all collectors. Recording before Init is a no-op.
func Init(clientID string) {
	if initialized.Load() {
		return
	}

	MessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   slicecallNamespace,
			Subsystem:   "signal",
			Name:        "messages",
			ConstLabels: prometheus.Labels{"client_id": clientID},
		},
		[]string{"type", "direction", "status"},
	)
	prometheus.MustRegister(MessageCounter)

	initCallStats(clientID)
	initMeasurementStats(clientID)

	initialized.Store(true)
}

func RecordSignalMessage(msgType string, direction string, err error) {
	if !initialized.Load() {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	MessageCounter.WithLabelValues(msgType, direction, status).Inc()
}
