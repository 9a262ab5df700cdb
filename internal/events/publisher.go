// Package events publishes authentication outcomes to Redis.
//
// Every Authenticate call produces one Event. Events are published on the
// Pub/Sub channel "ldapauth:events" so dashboards and audit sinks can follow
// logins without polling, and the latest event per user is kept under
// "ldapauth:last:{username}" with a TTL for the /api/events endpoint.
//
// Publishing is best-effort: Redis being down never changes an authentication
// result. Passwords are never part of an Event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Channel is the Pub/Sub channel events are published on.
	Channel    = "ldapauth:events"
	lastPrefix = "ldapauth:last:"
	defaultTTL = 24 * time.Hour
)

// Outcome is the result class of one authentication attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success" // directory accepted the credentials
	OutcomeEmpty   Outcome = "empty"   // directory returned no record
	OutcomeFailure Outcome = "failure" // directory or connection error
)

// Source says where the answer came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceDirectory Source = "directory"
)

// Event is the JSON message published for each attempt.
type Event struct {
	Username  string    `json:"username"`
	Outcome   Outcome   `json:"outcome"`
	Source    Source    `json:"source"`
	Groups    int       `json:"groups"` // number of groups returned, not their names
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes events to Redis. A nil *Publisher discards everything.
type Publisher struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Publisher. ttl <= 0 keeps last-events for 24h.
func New(rdb *redis.Client, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Publisher{rdb: rdb, ttl: ttl}
}

// ErrNotFound is returned by Last when no event is recorded for the user.
var ErrNotFound = errors.New("events: no event recorded for user")

// Publish stores ev as the user's last event and publishes it.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, lastPrefix+ev.Username, data, p.ttl)
	pipe.Publish(ctx, Channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Last returns the most recent event recorded for username.
func (p *Publisher) Last(ctx context.Context, username string) (*Event, error) {
	if p == nil {
		return nil, ErrNotFound
	}
	data, err := p.rdb.Get(ctx, lastPrefix+username).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("events: get %q: %w", username, err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("events: unmarshal: %w", err)
	}
	return &ev, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.rdb.Ping(ctx).Err()
}

// Close releases the Redis client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
