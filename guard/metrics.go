package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_guard_decisions_total",
		Help: "Guard outcomes by state",
	}, []string{"state"})
	accessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_guard_access_checks_total",
		Help: "Remote shop access checks by outcome (granted, revoked, role_changed, failed)",
	}, []string{"outcome"})
)
