package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
)

// Conn is the subset of *goldap.Conn used by a session. Tests substitute a fake.
type Conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	StartTLS(cfg *tls.Config) error
	SetTimeout(d time.Duration)
	IsClosing() bool
	Close() error
}

var _ Conn = (*goldap.Conn)(nil)

// DialFunc opens a raw connection for cfg.
type DialFunc func(ctx context.Context, cfg Config) (Conn, error)

type realDirectory struct {
	cfg  Config
	dial DialFunc
}

// NewRealDirectory returns a Directory backed by an LDAP/AD server.
// dial may be nil, in which case goldap.DialURL is used.
func NewRealDirectory(cfg Config, dial DialFunc) (Directory, error) {
	if cfg.URL == "" {
		return nil, errors.New("ldap: url is required")
	}
	if cfg.SearchBase == "" {
		return nil, errors.New("ldap: search_base is required")
	}
	cfg.ApplyDefaults()
	if dial == nil {
		dial = dialURL
	}
	return &realDirectory{cfg: cfg, dial: dial}, nil
}

func dialURL(_ context.Context, cfg Config) (Conn, error) {
	return goldap.DialURL(cfg.URL,
		goldap.DialWithDialer(&net.Dialer{Timeout: cfg.ConnectTimeout}),
		goldap.DialWithTLSConfig(tlsConfig(cfg)),
	)
}

func tlsConfig(cfg Config) *tls.Config {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify, //nolint:gosec // operator opt-in for lab directories
	}
	if u, err := url.Parse(cfg.URL); err == nil {
		tc.ServerName = u.Hostname()
	}
	return tc
}

// Open dials the server and performs the service-account bind.
func (d *realDirectory) Open(ctx context.Context) (Session, error) {
	conn, err := d.dial(ctx, d.cfg)
	if err != nil {
		return nil, &ConnectionError{Addr: d.cfg.URL, Err: err}
	}
	if d.cfg.StartTLS {
		if err := conn.StartTLS(tlsConfig(d.cfg)); err != nil {
			_ = conn.Close()
			return nil, &ConnectionError{Addr: d.cfg.URL, Err: err}
		}
	}
	conn.SetTimeout(d.cfg.Timeout)
	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindCredentials); err != nil {
			_ = conn.Close()
			return nil, &ConnectionError{Addr: d.cfg.URL, Err: err}
		}
	}
	return &realSession{conn: conn, cfg: d.cfg}, nil
}

type realSession struct {
	conn Conn
	cfg  Config

	mu      sync.Mutex
	onError func(error)
	closed  bool

	// aborted is set when ctx cancellation closed the connection under us.
	aborted atomic.Bool
}

func (s *realSession) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Authenticate searches for the user with the service account, binds as the
// user to verify the password, then searches the user's groups.
func (s *realSession) Authenticate(ctx context.Context, username, password string) (*UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AuthError{Username: username, Err: err}
	}
	if password == "" {
		return nil, &AuthError{Username: username, Err: ErrEmptyPassword}
	}

	// go-ldap has no context support; closing the connection aborts the
	// in-flight request.
	stop := context.AfterFunc(ctx, func() {
		s.aborted.Store(true)
		_ = s.conn.Close()
	})
	defer stop()

	user, err := s.findUser(username)
	if err != nil {
		return nil, &AuthError{Username: username, Err: err}
	}

	if err := s.conn.Bind(user.DN, password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &AuthError{Username: username, Err: err}
	}

	// Group ACLs often require an authenticated reader, so groups are
	// searched with the user's own bind.
	if s.cfg.GroupSearchBase != "" {
		groups, err := s.findGroups(username, user.DN)
		if err != nil {
			return nil, &AuthError{Username: username, Err: err}
		}
		user.Groups = groups
	}
	return user, nil
}

func (s *realSession) findUser(username string) (*UserRecord, error) {
	filter := strings.ReplaceAll(s.cfg.SearchFilter, UsernamePlaceholder, goldap.EscapeFilter(username))
	req := goldap.NewSearchRequest(
		s.cfg.SearchBase,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		2, 0, false,
		filter,
		s.cfg.SearchAttrs,
		nil,
	)
	res, err := s.conn.Search(req)
	if err != nil && !goldap.IsErrorWithCode(err, goldap.LDAPResultSizeLimitExceeded) {
		return nil, err
	}
	if res == nil || len(res.Entries) == 0 {
		return nil, ErrNoSuchUser
	}
	if len(res.Entries) > 1 {
		return nil, ErrAmbiguousUser
	}
	return &UserRecord{Entry: toEntry(res.Entries[0])}, nil
}

func (s *realSession) findGroups(username, userDN string) ([]Entry, error) {
	filter := strings.NewReplacer(
		UsernamePlaceholder, goldap.EscapeFilter(username),
		DNPlaceholder, goldap.EscapeFilter(userDN),
	).Replace(s.cfg.GroupSearchFilter)
	req := goldap.NewSearchRequest(
		s.cfg.GroupSearchBase,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		0, 0, false,
		filter,
		s.cfg.GroupSearchAttrs,
		nil,
	)
	res, err := s.conn.Search(req)
	if err != nil {
		return nil, err
	}
	groups := make([]Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		groups = append(groups, toEntry(e))
	}
	return groups, nil
}

// Close is idempotent; only the first call touches the connection.
func (s *realSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	onError := s.onError
	s.mu.Unlock()

	if s.conn.IsClosing() && !s.aborted.Load() && onError != nil {
		onError(ErrConnectionDropped)
	}
	if err := s.conn.Close(); err != nil {
		return &CloseError{Err: err}
	}
	return nil
}

func toEntry(e *goldap.Entry) Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = append([]string(nil), a.Values...)
	}
	return Entry{DN: e.DN, Attributes: attrs}
}
