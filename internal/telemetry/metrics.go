/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry wires prometheus/client_golang metrics and otel
// tracing for the engine process: HTTP surface metrics (request duration,
// active connections), updated by MetricsMiddleware, plus CORE counters and
// gauges that are registered here but not updated by any other package.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIActiveConnections tracks in-flight HTTP requests against the
	// control/health surface.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audioengine_api_active_connections",
		Help: "Number of in-flight HTTP requests.",
	})

	// APIRequestDuration and APIRequestsTotal are consumed by
	// MetricsMiddleware.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audioengine_api_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioengine_api_requests_total",
		Help: "Total HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// SinkUnderrunsTotal, SinkDroppedSamplesTotal and the reconfigure
	// counters are named after the sink.Metrics fields (§4.B, §8); nothing
	// copies sink.Metrics into them.
	SinkUnderrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioengine_sink_underrun_callbacks_total",
		Help: "Device callbacks that needed more samples than the ring supplied.",
	})
	SinkDroppedSamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioengine_sink_dropped_samples_total",
		Help: "Samples dropped after the sink write deadline elapsed.",
	})
	SinkReconfigureAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioengine_sink_reconfigure_attempts_total",
		Help: "Sink stream rebuild attempts.",
	})
	SinkReconfigureSuccessesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioengine_sink_reconfigure_successes_total",
		Help: "Sink stream rebuilds that succeeded.",
	})

	// ControlFinishLatency and ControlFinishTimeoutsTotal are named for the
	// resolution of non-Immediate control requests; the §4.I router does
	// not record into them.
	ControlFinishLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audioengine_control_finish_latency_seconds",
		Help:    "Time from control request acceptance to ControlFinished.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
	})
	ControlFinishTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioengine_control_finish_timeouts_total",
		Help: "Control requests resolved by deadline timeout rather than a matching event.",
	})

	// PluginGenerationsActive and PluginGenerationsDraining are named for
	// §4.F lifecycle state; the plugin service does not set them.
	PluginGenerationsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audioengine_plugin_generations_active",
		Help: "Active generation id per plugin (0 if none).",
	}, []string{"plugin_id"})
	PluginGenerationsDraining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audioengine_plugin_generations_draining",
		Help: "Deactivated generations per plugin still awaiting instance drain.",
	}, []string{"plugin_id"})

	// SessionsActive is named for the number of open decode-worker
	// sessions; nothing sets it.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audioengine_sessions_active",
		Help: "Number of currently open playback sessions.",
	})
)

// Handler exposes the process's registered metrics in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
