// Package auth authenticates users against the directory and returns their
// canonical name followed by their groups.
//
// Successful authentications are cached per username with a sliding TTL.
//
// SECURITY: a cache hit authenticates the user WITHOUT checking the password.
// Anyone who knows a username that logged in successfully within the last TTL
// window is let in by this process, whatever password they present. Keep
// cache_time short, and set it to the minimum your directory load allows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/ldapauth/internal/cache"
	"github.com/ruslano69/ldapauth/internal/events"
	"github.com/ruslano69/ldapauth/internal/ldap"
)

// DefaultGroupNameAttribute is extracted from group entries and memberOf DNs.
const DefaultGroupNameAttribute = "cn"

// DefaultCanonicalNameAttribute names the user attribute returned first.
const DefaultCanonicalNameAttribute = "cn"

// DefaultPublishTimeout bounds one event publish.
const DefaultPublishTimeout = 200 * time.Millisecond

// Config controls an Authenticator.
type Config struct {
	CacheTTL               time.Duration // sliding TTL of cached credentials
	CacheMaxEntries        int           // size bound of the credential cache
	GroupNameAttribute     string        // default "cn"
	CanonicalNameAttribute string        // default "cn"
}

// Publisher receives one event per authentication attempt.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Authenticator owns one credential cache and opens a fresh directory session
// for every cache miss.
type Authenticator struct {
	cfg    Config
	dir    ldap.Directory
	cache  *cache.Cache
	events Publisher
	log    zerolog.Logger

	publishTimeout time.Duration
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger replaces the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Authenticator) { a.log = l }
}

// WithPublisher sends authentication events to p.
func WithPublisher(p Publisher) Option {
	return func(a *Authenticator) { a.events = p }
}

// WithPublishTimeout bounds each event publish; d <= 0 keeps the default.
func WithPublishTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.publishTimeout = d
		}
	}
}

// WithCache replaces the cache built from Config; used by tests to inject a clock.
func WithCache(c *cache.Cache) Option {
	return func(a *Authenticator) { a.cache = c }
}

// New creates an Authenticator for dir.
func New(cfg Config, dir ldap.Directory, opts ...Option) *Authenticator {
	if cfg.GroupNameAttribute == "" {
		cfg.GroupNameAttribute = DefaultGroupNameAttribute
	}
	if cfg.CanonicalNameAttribute == "" {
		cfg.CanonicalNameAttribute = DefaultCanonicalNameAttribute
	}
	a := &Authenticator{
		cfg: cfg,
		dir: dir,
		log: log.Logger.With().Str("component", "auth").Logger(),

		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = cache.New(cfg.CacheTTL, cache.WithMaxEntries(cfg.CacheMaxEntries))
	}
	return a
}

// Cache exposes the owned credential cache so the caller can run its sweeper.
func (a *Authenticator) Cache() *cache.Cache { return a.cache }

// Authenticate returns the user's canonical name followed by its groups, and
// true. It returns nil, false when the directory rejects the user or cannot be
// reached; no directory fault escapes as an error or panic.
//
// A directory answer without a user record yields an empty list and true.
// A cached success is returned without contacting the directory and without
// checking password (see package doc).
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) ([]string, bool) {
	logger := a.log.With().Str("user", username).Logger()

	if cred, ok := a.cache.Get(username); ok {
		logger.Trace().Int("groups", len(cred.Groups)).Msg("credential cache hit")
		authTotal.WithLabelValues(resultCacheHit).Inc()
		a.publish(ctx, logger, events.Event{
			Username: username, Outcome: events.OutcomeSuccess, Source: events.SourceCache, Groups: len(cred.Groups),
		})
		return append([]string{cred.CanonicalName}, cred.Groups...), true
	}
	logger.Trace().Msg("credential cache miss, asking directory")

	rec, err := a.lookup(ctx, logger, username, password)
	if err != nil {
		// A fresh failure invalidates any earlier success.
		a.cache.Remove(username)
		logger.Warn().Err(err).Msg("ldap authentication failed")
		authTotal.WithLabelValues(resultFailure).Inc()
		a.publish(ctx, logger, events.Event{
			Username: username, Outcome: events.OutcomeFailure, Source: events.SourceDirectory,
		})
		return nil, false
	}

	if rec == nil {
		logger.Debug().Msg("directory returned no user record")
		authTotal.WithLabelValues(resultEmpty).Inc()
		a.publish(ctx, logger, events.Event{
			Username: username, Outcome: events.OutcomeEmpty, Source: events.SourceDirectory,
		})
		return []string{}, true
	}

	canonical, groups := Normalize(logger, rec, a.cfg.GroupNameAttribute, a.cfg.CanonicalNameAttribute)
	if canonical == "" {
		canonical = username
	}
	a.cache.Set(username, canonical, groups)

	logger.Debug().Str("cn", canonical).Strs("groups", groups).Msg("ldap authentication succeeded")
	authTotal.WithLabelValues(resultSuccess).Inc()
	a.publish(ctx, logger, events.Event{
		Username: username, Outcome: events.OutcomeSuccess, Source: events.SourceDirectory, Groups: len(groups),
	})
	return append([]string{canonical}, groups...), true
}

// lookup runs one directory session. The session is closed exactly once on
// every path; close errors are logged and dropped.
func (a *Authenticator) lookup(ctx context.Context, logger zerolog.Logger, username, password string) (rec *ldap.UserRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			directoryErrorsTotal.WithLabelValues(kindPanic).Inc()
			logger.Error().Interface("panic", r).Msg("ldap client panicked")
			rec, err = nil, fmt.Errorf("auth: directory client panic: %v", r)
		}
	}()

	start := time.Now()
	sess, err := a.dir.Open(ctx)
	if err != nil {
		directoryErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		return nil, err
	}
	sess.OnError(func(err error) {
		directoryErrorsTotal.WithLabelValues(kindAsync).Inc()
		logger.Error().Err(err).Msg("ldap client connection fault")
	})
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			directoryErrorsTotal.WithLabelValues(kindClose).Inc()
			logger.Warn().Err(cerr).Msg("ldap error on close")
		}
		directoryDuration.Observe(time.Since(start).Seconds())
	}()

	rec, err = sess.Authenticate(ctx, username, password)
	if err != nil {
		directoryErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		return nil, err
	}
	return rec, nil
}

// publish runs on its own deadline, detached from the caller's cancellation,
// so a slow event store delays a login by at most publishTimeout.
func (a *Authenticator) publish(ctx context.Context, logger zerolog.Logger, ev events.Event) {
	if a.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.publishTimeout)
	defer cancel()
	if err := a.events.Publish(ctx, ev); err != nil {
		logger.Debug().Err(err).Msg("auth event not published")
	}
}

func errorKind(err error) string {
	var (
		connErr *ldap.ConnectionError
		authErr *ldap.AuthError
	)
	switch {
	case errors.As(err, &connErr):
		return kindConnection
	case errors.As(err, &authErr):
		return kindAuth
	default:
		return kindOther
	}
}
