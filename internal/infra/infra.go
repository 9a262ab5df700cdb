package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/ldapauth/internal/auth"
	"github.com/ruslano69/ldapauth/internal/events"
	"github.com/ruslano69/ldapauth/internal/ldap"
	"github.com/ruslano69/ldapauth/internal/throttle"
)

// Infra holds all live infrastructure handles for the running service.
type Infra struct {
	Directory ldap.Directory
	Auth      *auth.Authenticator
	Events    *events.Publisher // nil when the event feed is disabled
	Throttle  *throttle.Limiter // nil when disabled or without events Redis

	// dev-mode internal instance; nil in production
	miniEvents *miniredis.Miniredis
}

// Setup builds the directory, the event feed and the authenticator.
//   - dev=true: mock directory and an in-process miniredis for events.
//   - dev=false: go-ldap directory; events only when events.addr is set.
func Setup(cfg *Config, dev bool) (*Infra, error) {
	inf := &Infra{}
	var rdb *redis.Client

	if dev {
		var err error
		inf.miniEvents, err = miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("infra: miniredis events: %w", err)
		}
		rdb = newEventsClient(cfg.Events, inf.miniEvents.Addr())
		inf.Events = events.New(rdb, cfg.Events.TTL)

		inf.Directory, err = ldap.NewMockDirectory(cfg.LDAP.MockUsersFile)
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("infra: mock ldap: %w", err)
		}

		log.Info().
			Str("events_redis", inf.miniEvents.Addr()).
			Msg("dev: in-process miniredis started")
	} else {
		if cfg.Events.Addr != "" {
			rdb = newEventsClient(cfg.Events, cfg.Events.Addr)
			inf.Events = events.New(rdb, cfg.Events.TTL)
		}

		dir, err := ldap.NewRealDirectory(cfg.LDAP, nil)
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("infra: ldap: %w", err)
		}
		inf.Directory = dir
	}

	if cfg.LDAP.Breaker.Enabled {
		inf.Directory = ldap.NewBreakerDirectory(inf.Directory, cfg.LDAP.URL, cfg.LDAP.Breaker)
	}

	// The event feed is optional; a dead Redis only costs the feed.
	if inf.Events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := inf.Events.Ping(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("events redis not reachable, auth events will be dropped")
		}
	}

	if cfg.Throttle.Enabled {
		if rdb == nil {
			log.Warn().Msg("throttle enabled but events.addr is empty, failed logins are not limited")
		} else {
			inf.Throttle = throttle.New(rdb, cfg.Throttle.MaxFailures, cfg.Throttle.Window)
		}
	}

	opts := []auth.Option{auth.WithPublishTimeout(cfg.Events.Timeout)}
	if inf.Events != nil {
		opts = append(opts, auth.WithPublisher(inf.Events))
	}
	inf.Auth = auth.New(auth.Config{
		CacheTTL:               cfg.CacheTTL(),
		CacheMaxEntries:        cfg.CacheMaxEntries,
		GroupNameAttribute:     cfg.GroupNameAttribute,
		CanonicalNameAttribute: cfg.CanonicalNameAttribute,
	}, inf.Directory, opts...)

	return inf, nil
}

// newEventsClient builds the Redis client shared by the event feed and the
// throttle. Both sit on the login path, so every call is short and retried once.
func newEventsClient(cfg EventsConfig, addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		MaxRetries:            1,
		DialTimeout:           cfg.Timeout,
		ReadTimeout:           cfg.Timeout,
		WriteTimeout:          cfg.Timeout,
		ContextTimeoutEnabled: true,
	})
}

// Close releases all infrastructure resources.
func (inf *Infra) Close() {
	if inf.Events != nil {
		_ = inf.Events.Close()
	}
	if inf.miniEvents != nil {
		inf.miniEvents.Close()
	}
}
