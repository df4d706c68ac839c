package odoo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odoo_rpc_calls_total",
			Help: "XML-RPC attempts against the Odoo backend.",
		},
		[]string{"endpoint", "outcome"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odoo_rpc_retries_total",
			Help: "Failed attempts that were scheduled for a retry.",
		},
		[]string{"endpoint"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odoo_rpc_call_duration_seconds",
			Help:    "Duration of a single XML-RPC attempt.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
