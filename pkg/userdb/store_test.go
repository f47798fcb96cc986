package userdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testOpen(t *testing.T, path string, opts Options) *Store {
	t.Helper()

	opts.Logger = zerolog.Nop()
	s, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AddAndAuthenticate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{})

	require.NoError(t, s.Add("alice", "wonderland123", RoleAdmin))

	role, err := s.Authenticate("alice", "wonderland123")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, role)

	_, err = s.Authenticate("alice", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate("nobody", "wonderland123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := s.Get("alice")
	require.NoError(t, err)
	require.False(t, u.LastLogin.IsZero(), "successful login must be recorded")
	require.NotContains(t, u.Hash, "wonderland123", "passwords are stored hashed")
}

func TestStore_LockoutAfterRepeatedFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := testOpen(t, path, Options{Now: func() time.Time { return now }})

	require.NoError(t, s.Add("bob", "builder-pass", RoleUser))

	for i := 0; i < MaxLoginAttempts; i++ {
		_, err := s.Authenticate("bob", "nope-nope-nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Locked now, even with the right password.
	_, err := s.Authenticate("bob", "builder-pass")
	require.ErrorIs(t, err, ErrLocked)

	// Still locked one minute before the window ends.
	now = now.Add(DefaultLockWindow - time.Minute)
	_, err = s.Authenticate("bob", "builder-pass")
	require.ErrorIs(t, err, ErrLocked)

	// Past the window the account gets a fresh start.
	now = now.Add(2 * time.Minute)
	role, err := s.Authenticate("bob", "builder-pass")
	require.NoError(t, err)
	require.Equal(t, RoleUser, role)

	u, err := s.Get("bob")
	require.NoError(t, err)
	require.Zero(t, u.FailedAttempts)
	require.True(t, u.LockedUntil.IsZero())
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")

	s, err := Open(path, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.Add("alice", "wonderland123", RoleAdmin))
	require.NoError(t, s.Add("bob", "builder-pass", RoleUser))
	require.NoError(t, s.Close())

	reopened := testOpen(t, path, Options{})
	require.Equal(t, 2, reopened.Len())

	users := reopened.List()
	require.Equal(t, []string{"alice", "bob"}, []string{users[0].Name, users[1].Name},
		"insertion order survives the round trip")

	role, err := reopened.Authenticate("bob", "builder-pass")
	require.NoError(t, err)
	require.Equal(t, RoleUser, role)
}

func TestStore_DuplicateUserRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{})

	require.NoError(t, s.Add("alice", "wonderland123", RoleUser))
	require.ErrorIs(t, s.Add("alice", "different-pass-456", RoleAdmin), ErrExists)
	require.Equal(t, 1, s.Len())
}

func TestStore_CapacityEnforced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{Capacity: 2})

	require.NoError(t, s.Add("a-user", "password-one", RoleUser))
	require.NoError(t, s.Add("b-user", "password-two", RoleUser))
	require.ErrorIs(t, s.Add("c-user", "password-three", RoleUser), ErrStoreFull)
}

func TestStore_PasswordPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{})

	require.ErrorIs(t, s.Add("alice", "short", RoleUser), ErrPasswordPolicy)
	require.Equal(t, 0, s.Len())
}

func TestStore_UsernameValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{})

	for _, name := range []string{
		"",
		strings.Repeat("x", MaxUsernameLen+1),
		"has space",
		"tab\tname",
	} {
		require.ErrorIs(t, s.Add(name, "password123", RoleUser), ErrNameInvalid, "name %q", name)
	}

	require.NoError(t, s.Add(strings.Repeat("x", MaxUsernameLen), "password123", RoleUser))
}

func TestStore_SecondWritableOpenRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{})

	_, err := Open(path, Options{Logger: zerolog.Nop()})
	require.ErrorIs(t, err, ErrStoreLocked)

	require.NoError(t, s.Close())

	again, err := Open(path, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestStore_ReadOnlyOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")

	w, err := Open(path, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, w.Add("alice", "wonderland123", RoleUser))
	require.NoError(t, w.Close())

	// Shared locks coexist.
	r1 := testOpen(t, path, Options{ReadOnly: true})
	r2 := testOpen(t, path, Options{ReadOnly: true})
	require.Equal(t, 1, r1.Len())
	require.Equal(t, 1, r2.Len())

	// A writer cannot join them.
	_, err = Open(path, Options{Logger: zerolog.Nop()})
	require.ErrorIs(t, err, ErrStoreLocked)

	require.ErrorIs(t, r1.Add("bob", "builder-pass", RoleUser), ErrReadOnly)
	require.ErrorIs(t, r1.Save(), ErrReadOnly)
}

func TestStore_UnsupportedFormatRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")

	data, err := yaml.Marshal(storeFile{FormatVersion: "2.0.0"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = Open(path, Options{Logger: zerolog.Nop()})
	require.ErrorContains(t, err, "format version")
}

func TestStore_MissingFormatVersionRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users: []\n"), 0o600))

	_, err := Open(path, Options{Logger: zerolog.Nop()})
	require.ErrorContains(t, err, "format_version")
}

func TestStore_ReloadPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s := testOpen(t, path, Options{})
	require.NoError(t, s.Add("alice", "wonderland123", RoleUser))

	// Simulate an operator editing the file by hand: the advisory lock
	// does not stop them.
	var f storeFile
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &f))
	f.Users = append(f.Users, &User{Name: "mallory", Hash: "x", Role: RoleGuest, CreatedAt: time.Now()})
	data, err = yaml.Marshal(&f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	require.NoError(t, s.Reload())
	require.Equal(t, 2, s.Len())

	_, err = s.Get("mallory")
	require.NoError(t, err)
}

func TestStore_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s, err := Open(path, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Add("alice", "wonderland123", RoleUser), ErrClosed)
	_, err = s.Authenticate("alice", "wonderland123")
	require.ErrorIs(t, err, ErrClosed)
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"admin":   RoleAdmin,
		"USER":    RoleUser,
		" guest ": RoleGuest,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseRole("root")
	require.Error(t, err)
}
