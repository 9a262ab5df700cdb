package ldap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMock(t *testing.T, usersFile string) Session {
	t.Helper()
	dir, err := NewMockDirectory(usersFile)
	require.NoError(t, err)
	s, err := dir.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMock_DefaultUser(t *testing.T) {
	s := openMock(t, "")
	rec, err := s.Authenticate(context.Background(), "alice", "alice-secret")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.Value("cn"))
	assert.Equal(t, []string{"CN=ops,OU=Groups,DC=example,DC=com"}, rec.Values("memberof"))
	require.Len(t, rec.Groups, 1)
	assert.Equal(t, "eng", rec.Groups[0].Value("cn"))
}

func TestMock_WrongPassword(t *testing.T) {
	s := openMock(t, "")
	_, err := s.Authenticate(context.Background(), "alice", "nope")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "alice", authErr.Username)
}

func TestMock_UnknownUser(t *testing.T) {
	s := openMock(t, "")
	_, err := s.Authenticate(context.Background(), "mallory", "x")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestMock_AbsentUserYieldsNilRecord(t *testing.T) {
	s := openMock(t, "")
	rec, err := s.Authenticate(context.Background(), "ghost", "anything")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMock_UsersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	content := `
- username: carol
  password: pw
  cn: Carol
  member_of:
    - CN=dba,OU=Groups,DC=corp
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := openMock(t, path)
	rec, err := s.Authenticate(context.Background(), "carol", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Carol", rec.Value("cn"))
	assert.Empty(t, rec.Groups)

	_, err = s.Authenticate(context.Background(), "alice", "alice-secret")
	assert.ErrorIs(t, err, ErrNoSuchUser, "file replaces built-in users")
}

func TestMock_MissingUsersFile(t *testing.T) {
	_, err := NewMockDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEntry_ValuesCaseInsensitive(t *testing.T) {
	e := Entry{Attributes: map[string][]string{"memberOf": {"a", "b"}}}
	assert.Equal(t, []string{"a", "b"}, e.Values("MEMBEROF"))
	assert.Equal(t, "a", e.Value("memberof"))
	assert.Nil(t, e.Values("cn"))
	assert.Equal(t, "", e.Value("cn"))
}
