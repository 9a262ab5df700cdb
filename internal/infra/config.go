// Package infra handles configuration loading and infrastructure wiring.
package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/ldapauth/internal/ldap"
)

// Config is the top-level configuration structure for ldapauth.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LDAP     ldap.Config    `yaml:"ldap"`
	Events   EventsConfig   `yaml:"events"`
	Throttle ThrottleConfig `yaml:"throttle"`

	// CacheTime is the sliding TTL of cached credentials in milliseconds.
	CacheTime              int64         `yaml:"cache_time"`               // default 180000 (3m)
	CacheMaxEntries        int           `yaml:"cache_max_entries"`        // default 10000
	CacheSweepInterval     time.Duration `yaml:"cache_sweep_interval"`     // default 1m
	GroupNameAttribute     string        `yaml:"group_name_attribute"`     // default "cn"
	CanonicalNameAttribute string        `yaml:"canonical_name_attribute"` // default "cn"
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`            // default ":3000"
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // default 10s
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // default 35s, must exceed request_timeout
	RequestTimeout time.Duration `yaml:"request_timeout"` // default 30s, bounds one authenticate call

	// AdminToken guards /api/events; empty disables that endpoint.
	// Read from LDAPAUTH_ADMIN_TOKEN when unset.
	AdminToken string `yaml:"admin_token"`
}

// EventsConfig points at the Redis used for the authentication event feed.
// An empty Addr disables the feed (dev mode always runs an in-process Redis).
type EventsConfig struct {
	Addr     string        `yaml:"addr"`     // host:port
	Password string        `yaml:"password"` // empty = no auth
	DB       int           `yaml:"db"`       // 0-based
	TTL      time.Duration `yaml:"ttl"`      // how long the last event per user is kept; default 24h
	Timeout  time.Duration `yaml:"timeout"`  // per publish and per Redis I/O; default 200ms
}

// ThrottleConfig limits failed logins per username. It uses the events Redis
// and is ignored when the event feed is disabled.
type ThrottleConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures int           `yaml:"max_failures"` // default 5
	Window      time.Duration `yaml:"window"`       // default 15m
}

// CacheTTL converts CacheTime to a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTime) * time.Millisecond
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":3000"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 35 * time.Second
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.CacheTime = 180000
	cfg.CacheMaxEntries = 10000
	cfg.CacheSweepInterval = time.Minute
	cfg.GroupNameAttribute = "cn"
	cfg.CanonicalNameAttribute = "cn"
	cfg.Events.TTL = 24 * time.Hour
	cfg.Events.Timeout = 200 * time.Millisecond
	cfg.Throttle.MaxFailures = 5
	cfg.Throttle.Window = 15 * time.Minute
	return cfg
}

// Validate checks values that no default can repair. The write timeout must
// outlast the request timeout, or a slow login that succeeds is cut off
// mid-response.
func (c *Config) Validate() error {
	if c.CacheTime <= 0 {
		return fmt.Errorf("config: cache_time must be positive, got %d", c.CacheTime)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	if c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("config: server.write_timeout (%s) must exceed server.request_timeout (%s)",
			c.Server.WriteTimeout, c.Server.RequestTimeout)
	}
	return nil
}

// LoadConfig reads the YAML config at path, applying defaults. An empty path
// returns the defaults, which is enough for dev mode.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Events.Timeout <= 0 {
		cfg.Events.Timeout = 200 * time.Millisecond
	}
	if cfg.GroupNameAttribute == "" {
		cfg.GroupNameAttribute = "cn"
	}
	if cfg.CanonicalNameAttribute == "" {
		cfg.CanonicalNameAttribute = "cn"
	}
	if cfg.Server.AdminToken == "" {
		cfg.Server.AdminToken = os.Getenv("LDAPAUTH_ADMIN_TOKEN")
	}
	if cfg.Events.Password == "" {
		cfg.Events.Password = os.Getenv("LDAPAUTH_EVENTS_PASSWORD")
	}
	cfg.LDAP.ApplyDefaults()
	return cfg, nil
}
