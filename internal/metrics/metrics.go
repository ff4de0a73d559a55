// Package metrics exposes the prometheus instruments shared by the
// evaluation and dispatch pipeline. Everything registers on the default
// registry and is served from the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmwatch_evaluation_passes_total",
		Help: "Number of completed alert evaluation passes.",
	})

	AlertsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmwatch_alerts_evaluated_total",
		Help: "Number of individual alert evaluations.",
	})

	TriggersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmwatch_triggers_fired_total",
		Help: "Number of alerts whose conditions were met.",
	})

	NotificationsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmwatch_notifications_persisted_total",
		Help: "Number of durable notification records written.",
	})

	PushDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmwatch_push_delivered_total",
		Help: "Number of realtime push deliveries to connected sessions.",
	})

	PushFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farmwatch_push_failed_total",
		Help: "Number of realtime push attempts that reached no session.",
	})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "farmwatch_evaluation_pass_duration_seconds",
		Help:    "Wall time of one evaluation pass including dispatch.",
		Buckets: prometheus.DefBuckets,
	})
)
