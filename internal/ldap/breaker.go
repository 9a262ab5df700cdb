package ldap

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerDirectory wraps any Directory with a circuit breaker around Open.
// Only connection failures count against the breaker; authentication
// failures happen after Open and never trip it.
type BreakerDirectory struct {
	inner Directory
	addr  string
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerDirectory wraps inner. addr is only used in error messages.
func NewBreakerDirectory(inner Directory, addr string, cfg BreakerConfig) *BreakerDirectory {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ldap",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("directory circuit breaker state change")
		},
	})
	return &BreakerDirectory{inner: inner, addr: addr, cb: cb}
}

func (b *BreakerDirectory) Open(ctx context.Context) (Session, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Open(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ConnectionError{Addr: b.addr, Err: err}
		}
		return nil, err
	}
	return v.(Session), nil
}

// State reports the breaker state ("closed", "open", "half-open").
func (b *BreakerDirectory) State() string {
	return b.cb.State().String()
}
