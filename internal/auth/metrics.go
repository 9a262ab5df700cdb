package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultCacheHit = "cache_hit"
	resultSuccess  = "success"
	resultEmpty    = "empty"
	resultFailure  = "failure"

	kindConnection = "connection"
	kindAuth       = "auth"
	kindClose      = "close"
	kindAsync      = "async"
	kindPanic      = "panic"
	kindOther      = "other"
)

var (
	// authTotal counts Authenticate calls by result.
	authTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldapauth_authentications_total",
			Help: "Total number of authentication attempts by result",
		},
		[]string{"result"},
	)

	// directoryErrorsTotal counts directory faults by kind (connection, auth, close, async, panic).
	directoryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldapauth_directory_errors_total",
			Help: "Total number of directory errors by kind",
		},
		[]string{"kind"},
	)

	directoryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ldapauth_directory_duration_seconds",
		Help:    "Duration of one directory session (open, authenticate, close)",
		Buckets: prometheus.DefBuckets,
	})
)
