package ldap

import (
	"context"
	"errors"
	"fmt"
	"os"

	goldap "github.com/go-ldap/ldap/v3"
	"gopkg.in/yaml.v3"
)

// mockUser is one entry in the YAML users file.
type mockUser struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	CN       string   `yaml:"cn"`
	Groups   []string `yaml:"groups"`    // names of groups returned by the group search
	MemberOf []string `yaml:"member_of"` // group DNs on the user entry
	Absent   bool     `yaml:"absent"`    // directory answers with no record and no error
}

type mockDirectory struct {
	users map[string]mockUser
}

// NewMockDirectory creates a Directory backed by a YAML file.
// If usersFile is empty, built-in dev defaults are used:
//
//	alice / alice-secret → cn=alice, groups [eng], memberOf [CN=ops,...]
//	bob   / bob-secret   → cn=Bob Builder, no groups
//	ghost                → authenticates to an empty record
func NewMockDirectory(usersFile string) (Directory, error) {
	md := &mockDirectory{users: make(map[string]mockUser)}

	if usersFile == "" {
		for _, u := range []mockUser{
			{
				Username: "alice", Password: "alice-secret", CN: "alice",
				Groups:   []string{"eng"},
				MemberOf: []string{"CN=ops,OU=Groups,DC=example,DC=com"},
			},
			{Username: "bob", Password: "bob-secret", CN: "Bob Builder"},
			{Username: "ghost", Absent: true},
		} {
			md.users[u.Username] = u
		}
		return md, nil
	}

	data, err := os.ReadFile(usersFile)
	if err != nil {
		return nil, fmt.Errorf("mock ldap: read users file %q: %w", usersFile, err)
	}
	var users []mockUser
	if err := yaml.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("mock ldap: parse users file: %w", err)
	}
	for _, u := range users {
		md.users[u.Username] = u
	}
	return md, nil
}

func (md *mockDirectory) Open(context.Context) (Session, error) {
	return &mockSession{dir: md}, nil
}

type mockSession struct {
	dir *mockDirectory
}

var errInvalidCredentials = goldap.NewError(goldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))

func (s *mockSession) Authenticate(ctx context.Context, username, password string) (*UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AuthError{Username: username, Err: err}
	}
	u, ok := s.dir.users[username]
	if !ok {
		return nil, &AuthError{Username: username, Err: ErrNoSuchUser}
	}
	if u.Absent {
		return nil, nil
	}
	if password == "" {
		return nil, &AuthError{Username: username, Err: ErrEmptyPassword}
	}
	if password != u.Password {
		return nil, &AuthError{Username: username, Err: errInvalidCredentials}
	}

	rec := &UserRecord{Entry: Entry{
		DN:         "uid=" + u.Username + ",ou=people,dc=example,dc=com",
		Attributes: map[string][]string{"uid": {u.Username}, "cn": {u.CN}},
	}}
	if len(u.MemberOf) > 0 {
		rec.Attributes["memberOf"] = append([]string(nil), u.MemberOf...)
	}
	for _, g := range u.Groups {
		rec.Groups = append(rec.Groups, Entry{
			DN:         "cn=" + g + ",ou=groups,dc=example,dc=com",
			Attributes: map[string][]string{"cn": {g}},
		})
	}
	return rec, nil
}

func (s *mockSession) Close() error        { return nil }
func (s *mockSession) OnError(func(error)) {}
