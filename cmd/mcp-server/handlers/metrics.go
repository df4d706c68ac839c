package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_tool_duration_seconds",
			Help:    "Tool call latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
)
