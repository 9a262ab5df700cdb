package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// failuresTotal counts failed logins recorded by the limiter.
	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ldapauth_throttle_failures_total",
		Help: "Total number of failed logins counted against the per-user budget",
	})

	// lockedTotal counts attempts rejected because the user was locked.
	lockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ldapauth_throttle_locked_total",
		Help: "Total number of login attempts rejected by the failure throttle",
	})
)
