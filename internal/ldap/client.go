// Package ldap provides the directory capability used by the authenticator.
//
// A Directory opens one short-lived Session per authentication attempt. In dev
// mode (--dev) use NewMockDirectory which reads users from a YAML file. In
// production use NewRealDirectory which dials a real LDAP/AD server. Either can
// be wrapped with NewBreakerDirectory to stop hammering an unreachable server.
package ldap

import (
	"context"
	"os"
	"strings"
	"time"
)

const (
	// UsernamePlaceholder is replaced with the escaped login name in SearchFilter
	// and GroupSearchFilter.
	UsernamePlaceholder = "{{username}}"
	// DNPlaceholder is replaced with the escaped user DN in GroupSearchFilter.
	DNPlaceholder = "{{dn}}"

	defaultSearchFilter = "(uid=" + UsernamePlaceholder + ")"
)

// Config holds LDAP connection parameters. They are passed through to the
// directory client untouched; only empty fields receive defaults.
type Config struct {
	URL             string   `yaml:"url"`              // e.g. "ldap://dc.corp.local:389" or "ldaps://..."
	BindDN          string   `yaml:"bind_dn"`          // service account used for the user search
	BindCredentials string   `yaml:"bind_credentials"` // read from LDAPAUTH_BIND_CREDENTIALS when empty
	SearchBase      string   `yaml:"search_base"`      // e.g. "ou=people,dc=corp,dc=local"
	SearchFilter    string   `yaml:"search_filter"`    // default "(uid={{username}})"
	SearchAttrs     []string `yaml:"search_attributes"`

	GroupSearchBase   string   `yaml:"group_search_base"`   // empty disables the group search
	GroupSearchFilter string   `yaml:"group_search_filter"` // e.g. "(member={{dn}})"
	GroupSearchAttrs  []string `yaml:"group_search_attributes"`

	Timeout               time.Duration `yaml:"timeout"`         // per-operation timeout
	ConnectTimeout        time.Duration `yaml:"connect_timeout"` // dial timeout
	StartTLS              bool          `yaml:"start_tls"`
	TLSInsecureSkipVerify bool          `yaml:"tls_insecure_skip_verify"`

	MockUsersFile string        `yaml:"mock_users_file"` // path to YAML users file for dev mode
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls the optional circuit breaker around Directory.Open.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"` // trips after this many dial failures in a row
	OpenTimeout         time.Duration `yaml:"open_timeout"`         // time spent open before half-open probe
}

// ApplyDefaults fills empty fields with the values used by NewRealDirectory.
func (c *Config) ApplyDefaults() {
	if c.SearchFilter == "" {
		c.SearchFilter = defaultSearchFilter
	}
	if c.BindCredentials == "" {
		c.BindCredentials = os.Getenv("LDAPAUTH_BIND_CREDENTIALS")
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = 30 * time.Second
	}
}

// Directory opens sessions against the directory service.
type Directory interface {
	// Open connects (and performs the service bind when configured).
	// Returns *ConnectionError when the directory is unreachable or misconfigured.
	Open(ctx context.Context) (Session, error)
}

// Session is a single directory connection. It must be closed exactly once.
type Session interface {
	// Authenticate verifies username/password and returns the user record.
	// Bad credentials, unknown users and protocol errors are all reported as
	// *AuthError. A nil record with a nil error means the directory had nothing
	// to say about the user.
	Authenticate(ctx context.Context, username, password string) (*UserRecord, error)

	// Close tears down the connection. Errors are *CloseError.
	Close() error

	// OnError registers a handler for asynchronous connection faults that are
	// not tied to an operation result.
	OnError(fn func(error))
}

// Entry is a directory entry. Every attribute is multi-valued, which turns the
// "single value or array" shape of directory attributes into one sequence type.
type Entry struct {
	DN         string              `json:"dn" yaml:"dn"`
	Attributes map[string][]string `json:"attributes" yaml:"attributes"`
}

// Values returns all values of the named attribute (case-insensitive).
func (e Entry) Values(name string) []string {
	if v, ok := e.Attributes[name]; ok {
		return v
	}
	for k, v := range e.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Value returns the first value of the named attribute, or "".
func (e Entry) Value(name string) string {
	if v := e.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

// UserRecord is the user entry plus the group entries found by the optional
// group search.
type UserRecord struct {
	Entry
	Groups []Entry `json:"groups,omitempty" yaml:"groups,omitempty"`
}
