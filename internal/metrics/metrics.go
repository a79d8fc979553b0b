// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dictation_session_active",
		Help: "1 while a session is recording or transcribing",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_sessions_total",
		Help: "Sessions by terminal status",
	}, []string{"status"})

	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_triggers_total",
		Help: "Accepted shortcut triggers",
	}, []string{"trigger"})

	TriggersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dictation_triggers_rejected_total",
		Help: "Start or stop triggers rejected by the session state",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dictation_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})

	EnhancementFallback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_enhancement_fallback_total",
		Help: "Transcripts passed through without enhancement, by reason",
	}, []string{"reason"})

	SideEffectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_side_effect_errors_total",
		Help: "Failed side effects by kind",
	}, []string{"effect"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
