// Package metrics exposes Prometheus instrumentation for the streaming
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "beamcast"

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	FramesSent      prometheus.Counter
	BlocksSent      prometheus.Counter
	TransferErrors  prometheus.Counter
	FramesCaptured  prometheus.Counter
	FramesDropped   prometheus.Counter
	CaptureFailures prometheus.Counter
	EngineRunning   prometheus.Gauge
}

// New registers the pipeline collectors with reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames successfully drawn on the projector",
		}),
		BlocksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_sent_total",
			Help:      "Data blocks transferred over USB",
		}),
		TransferErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_errors_total",
			Help:      "Frame cycles abandoned due to a USB transfer error",
		}),
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames produced by the capture source",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Published frames overwritten before the engine consumed them",
		}),
		CaptureFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Capture attempts that fell back to the test pattern",
		}),
		EngineRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_running",
			Help:      "Whether the streaming engine loop is active",
		}),
	}
}
