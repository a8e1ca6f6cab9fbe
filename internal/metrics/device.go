package metrics

import "github.com/prometheus/client_golang/prometheus"

// Kernel device Prometheus metrics.
var (
	DeviceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kvecd",
			Name:      "device_calls_total",
			Help:      "Total number of kernel device calls",
		},
		[]string{"op", "status"},
	)

	DeviceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kvecd",
			Name:      "device_call_duration_seconds",
			Help:      "Kernel device call duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)

	DevicePoolInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kvecd",
			Name:      "device_pool_in_flight",
			Help:      "Device calls currently holding a pool slot",
		},
	)

	DevicePoolWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kvecd",
			Name:      "device_pool_wait_seconds",
			Help:      "Time spent waiting for a device pool slot",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// RegisterDeviceMetrics registers device metrics with the default registry.
// Called once from the composition root (no init()).
func RegisterDeviceMetrics() {
	prometheus.MustRegister(DeviceCallsTotal)
	prometheus.MustRegister(DeviceCallDuration)
	prometheus.MustRegister(DevicePoolInFlight)
	prometheus.MustRegister(DevicePoolWaitDuration)
}
