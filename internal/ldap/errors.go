package ldap

import (
	"errors"
	"fmt"
)

// ConnectionError is returned by Directory.Open when the server cannot be
// reached or the service bind is rejected.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ldap: connect %q: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError covers bad credentials, unknown users and protocol errors. The
// caller cannot tell these apart.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ldap: authenticate %q: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CloseError wraps a failure to tear down a session.
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("ldap: close: %v", e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

var (
	// ErrNoSuchUser is wrapped in an AuthError when the user search finds nothing.
	ErrNoSuchUser = errors.New("no such user")

	// ErrAmbiguousUser is wrapped in an AuthError when the user search matches
	// more than one entry.
	ErrAmbiguousUser = errors.New("user search returned more than one entry")

	// ErrEmptyPassword is wrapped in an AuthError; an empty password would be an
	// unauthenticated bind and succeed on most servers.
	ErrEmptyPassword = errors.New("empty password")

	// ErrConnectionDropped is reported through Session.OnError when the server
	// closed the connection before the session did.
	ErrConnectionDropped = errors.New("connection dropped by server")
)
