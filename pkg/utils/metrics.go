package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_active_calls",
		Help: "Number of outbound calls currently in progress",
	})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dial_jobs_processed_total",
		Help: "Dial jobs processed by the worker, labeled by result",
	}, []string{"result"})

	WebhookTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_webhook_turns_total",
		Help: "Provider webhook callbacks handled, labeled by kind",
	}, []string{"kind"})

	QuotaDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quota_denials_total",
		Help: "Operations denied by the usage quota gate",
	})

	UsageRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usage_record_failures_total",
		Help: "Failed usage bucket writes",
	})
)
