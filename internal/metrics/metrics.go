// Package metrics exposes Prometheus counters for the widget flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinpipe_sessions_started_total",
		Help: "Widget sessions opened, by whether the photo step was requested.",
	}, []string{"photo"})

	AnswersRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skinpipe_answers_recorded_total",
		Help: "Quiz answers accepted.",
	})

	InvalidEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinpipe_invalid_events_total",
		Help: "Rejected selections and transitions, by reason.",
	}, []string{"reason"})

	Completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinpipe_quiz_completions_total",
		Help: "Completed questionnaires by resolved combo key.",
	}, []string{"combo_key"})

	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinpipe_photo_analyses_total",
		Help: "Photo analyses by detected skin type, or \"error\".",
	}, []string{"skin_type"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skinpipe_messages_sent_total",
		Help: "Outbound messages by kind and result.",
	}, []string{"kind", "result"})
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
