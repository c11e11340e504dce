package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tokenChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "console_token_checks_total",
	Help: "Token checks by outcome (offline, absent, verified, refreshed, rejected)",
}, []string{"outcome"})

func recordCheck(outcome string) {
	tokenChecks.WithLabelValues(outcome).Inc()
}
