package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurnsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "turns_processed_total",
		Help:      "Number of turns processed, by final status.",
	}, []string{"status"})

	metricStreamTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "stream_tokens_total",
		Help:      "Number of safe-to-display token events emitted.",
	})

	metricCriticRounds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "critic_rounds_total",
		Help:      "Number of critic-revise rounds executed.",
	})

	metricToolFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "tool_failures_total",
		Help:      "Number of collaborator calls degraded into fallback results, by tool.",
	}, []string{"tool"})

	metricTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "advisor",
		Name:      "turn_duration_seconds",
		Help:      "Wall time to process one turn end to end.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
