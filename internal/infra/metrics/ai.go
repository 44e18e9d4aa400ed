package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsLatencyMs,
		aiFallbacksTotal,
		aiPromptTokens,
	)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_calls_latency_ms",
			Help:      "Generative call latency distribution in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "success"},
	)

	aiFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_fallbacks_total",
			Help:      "Replies that fell back to the deterministic selector, by reason.",
		},
		[]string{"reason"}, // timeout | error | empty
	)

	aiPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_prompt_tokens",
			Help:      "Prompt size after trimming to the token budget.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
		},
	)
)

func ObserveAICall(provider string, latencyMs int64, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncAIFallback(reason string) {
	aiFallbacksTotal.WithLabelValues(norm(reason)).Inc()
}

func ObservePromptTokens(n int) {
	aiPromptTokens.Observe(float64(n))
}
