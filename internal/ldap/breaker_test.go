package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyDirectory struct {
	fail  bool
	opens int
}

func (d *flakyDirectory) Open(context.Context) (Session, error) {
	d.opens++
	if d.fail {
		return nil, &ConnectionError{Addr: "ldap://down", Err: errors.New("connection refused")}
	}
	return &mockSession{dir: &mockDirectory{}}, nil
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyDirectory{fail: true}
	b := NewBreakerDirectory(inner, "ldap://down", BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := b.Open(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Open(context.Background())
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.opens, "open breaker must not reach the directory")
}

func TestBreaker_PassesThroughSessions(t *testing.T) {
	inner := &flakyDirectory{}
	b := NewBreakerDirectory(inner, "ldap://up", BreakerConfig{})

	s, err := b.Open(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())
	assert.Equal(t, "closed", b.State())
}
