package oauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tokensIssued = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "oauth_issued_total",
		Help: "Clients, codes and tokens issued by the authorization server.",
	},
	[]string{"kind"},
)
