// Package throttle limits repeated failed logins per username via a Redis Lua script.
//
// Each failure increments "ldapauth:fail:{username}". The first failure of a
// window sets the key's expiry, so the counter resets on its own once the
// window has passed. A successful login deletes the key.
//
// The limiter fails open: when Redis is unreachable, logins proceed.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ldapauth:fail:"

// luaFail atomically counts one failure.
//
// KEYS[1] = failure key (e.g. "ldapauth:fail:alice")
// ARGV[1] = window in milliseconds, applied when the key is created
//
// Returns the failure count inside the current window.
const luaFail = `
local n = redis.call('INCR', KEYS[1])
if n == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`

// ErrLocked is returned by Check when the user has used up the failure budget.
var ErrLocked = errors.New("throttle: too many failed attempts")

// Limiter runs the failure script against the events Redis.
// A nil *Limiter allows everything.
type Limiter struct {
	rdb         *redis.Client
	maxFailures int
	window      time.Duration
	script      *redis.Script
}

// New creates a Limiter that locks a username after maxFailures failures
// within window.
func New(rdb *redis.Client, maxFailures int, window time.Duration) *Limiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Limiter{
		rdb:         rdb,
		maxFailures: maxFailures,
		window:      window,
		script:      redis.NewScript(luaFail),
	}
}

// Check returns ErrLocked if username has reached the failure budget.
// Redis errors are returned wrapped; callers treat them as "allowed".
func (l *Limiter) Check(ctx context.Context, username string) error {
	if l == nil {
		return nil
	}
	n, err := l.rdb.Get(ctx, keyPrefix+username).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("throttle: get %q: %w", username, err)
	}
	if n >= l.maxFailures {
		lockedTotal.Inc()
		return ErrLocked
	}
	return nil
}

// Fail records one failed attempt and returns the count within the window.
func (l *Limiter) Fail(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.script.Run(ctx, l.rdb, []string{keyPrefix + username}, l.window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("throttle: lua script: %w", err)
	}
	failuresTotal.Inc()
	return n, nil
}

// Reset clears the failure count after a successful login.
func (l *Limiter) Reset(ctx context.Context, username string) error {
	if l == nil {
		return nil
	}
	if err := l.rdb.Del(ctx, keyPrefix+username).Err(); err != nil {
		return fmt.Errorf("throttle: reset %q: %w", username, err)
	}
	return nil
}
