package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promMeasurementItems prometheus.Counter
	promMeasurementSkips *prometheus.CounterVec
	promSinkFlushes      *prometheus.CounterVec
	promSinkFlushedItems *prometheus.CounterVec
	promLastRTT          prometheus.Gauge
	promLastBitrate      prometheus.Gauge
	promLastCePercent    prometheus.Gauge
)

func initMeasurementStats(clientID string) {
	promMeasurementItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "items",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	})
	promMeasurementSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "skipped_samples",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	}, []string{"reason"})
	promSinkFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "sink_flushes",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	}, []string{"sink", "status"})
	promSinkFlushedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "sink_items",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	}, []string{"sink"})
	promLastRTT = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "rtt_ms",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	})
	promLastBitrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "video_bitrate_kbps",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	})
	promLastCePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   slicecallNamespace,
		Subsystem:   "measurement",
		Name:        "ecn_ce_percent",
		ConstLabels: prometheus.Labels{"client_id": clientID},
	})

	prometheus.MustRegister(promMeasurementItems)
	prometheus.MustRegister(promMeasurementSkips)
	prometheus.MustRegister(promSinkFlushes)
	prometheus.MustRegister(promSinkFlushedItems)
	prometheus.MustRegister(promLastRTT)
	prometheus.MustRegister(promLastBitrate)
	prometheus.MustRegister(promLastCePercent)
}

func RecordMeasurement(rttMs float64, bitrateKbps float64, cePercent float64) {
	if !initialized.Load() {
		return
	}
	promMeasurementItems.Inc()
	if rttMs >= 0 {
		promLastRTT.Set(rttMs)
	}
	promLastBitrate.Set(bitrateKbps)
	promLastCePercent.Set(cePercent)
}

func RecordSkippedSample(reason string) {
	if !initialized.Load() {
		return
	}
	promMeasurementSkips.WithLabelValues(reason).Inc()
}

func RecordSinkFlush(sink string, items int, err error) {
	if !initialized.Load() {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	promSinkFlushes.WithLabelValues(sink, status).Inc()
	if err == nil {
		promSinkFlushedItems.WithLabelValues(sink).Add(float64(items))
	}
}
