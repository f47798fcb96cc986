// pkg/userdb/store.go
// Package userdb is the credential store behind the AUTH command: a
// bounded, file-backed user database with bcrypt password hashes and
// failed-login lockout tracking.
package userdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Role classifies what an authenticated user may do.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a string onto a known Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleGuest:
		return RoleGuest, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("userdb: unknown role %q", s)
}

// Limits carried over from the original database layout.
const (
	DefaultCapacity   = 100
	MaxUsernameLen    = 32
	MinPasswordLen    = 8
	MaxLoginAttempts  = 5
	DefaultLockWindow = 30 * time.Minute
)

// FormatVersion is written into every store file. Files are accepted
// when their version satisfies formatConstraint.
const FormatVersion = "1.0.0"

var formatConstraint = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

var (
	validate  = validator.New()
	nameRules = fmt.Sprintf("required,max=%d,printascii", MaxUsernameLen)
)

var (
	ErrExists             = errors.New("userdb: user already exists")
	ErrNotFound           = errors.New("userdb: user not found")
	ErrStoreFull          = errors.New("userdb: store full")
	ErrInvalidCredentials = errors.New("userdb: invalid credentials")
	ErrLocked             = errors.New("userdb: account locked")
	ErrPasswordPolicy     = fmt.Errorf("userdb: password shorter than %d characters", MinPasswordLen)
	ErrNameInvalid        = errors.New("userdb: invalid username")
	ErrReadOnly           = errors.New("userdb: store opened read-only")
	ErrClosed             = errors.New("userdb: store closed")
	ErrStoreLocked        = errors.New("userdb: database in use by another process")
)

// User is one stored account.
type User struct {
	Name           string    `yaml:"name"`
	Hash           string    `yaml:"hash"`
	Role           Role      `yaml:"role"`
	CreatedAt      time.Time `yaml:"created_at"`
	LastLogin      time.Time `yaml:"last_login,omitempty"`
	FailedAttempts int       `yaml:"failed_attempts,omitempty"`
	LockedUntil    time.Time `yaml:"locked_until,omitempty"`
}

// storeFile is the on-disk layout.
type storeFile struct {
	FormatVersion string  `yaml:"format_version"`
	Users         []*User `yaml:"users"`
}

// Options tunes Open.
type Options struct {
	// Capacity caps the number of users. Below 1 falls back to
	// DefaultCapacity.
	Capacity int

	// LockWindow is how long an account stays locked after too many
	// failures. Zero falls back to DefaultLockWindow.
	LockWindow time.Duration

	// ReadOnly opens the store with a shared file lock and rejects
	// mutations. Several read-only stores may coexist.
	ReadOnly bool

	// Logger receives store events.
	Logger zerolog.Logger

	// Now is the clock used for lockout arithmetic. Nil means time.Now.
	Now func() time.Time
}

// Store is a bounded, file-backed user database. One mutex guards all
// state; mutations are persisted to disk as they happen. While open, the
// store holds an advisory lock on a sidecar file: exclusive for writable
// stores, shared for read-only ones, so a writer never races another
// process over the same database.
type Store struct {
	mu       sync.Mutex
	path     string
	users    map[string]*User
	order    []string
	capacity int
	window   time.Duration
	readOnly bool
	closed   bool
	now      func() time.Time
	flk      *flock.Flock
	log      zerolog.Logger
}

// Open loads the database at path, creating an empty one when the file
// does not exist yet. It fails with ErrStoreLocked when another process
// (or store) holds a conflicting lock.
func Open(path string, opts Options) (*Store, error) {
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.LockWindow <= 0 {
		opts.LockWindow = DefaultLockWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("userdb: create directory: %w", err)
		}
	}

	flk := flock.New(path + ".lock")
	var (
		locked bool
		err    error
	)
	if opts.ReadOnly {
		locked, err = flk.TryRLock()
	} else {
		locked, err = flk.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("userdb: acquire file lock: %w", err)
	}
	if !locked {
		return nil, ErrStoreLocked
	}

	s := &Store{
		path:     path,
		users:    make(map[string]*User, opts.Capacity),
		capacity: opts.Capacity,
		window:   opts.LockWindow,
		readOnly: opts.ReadOnly,
		now:      opts.Now,
		flk:      flk,
		log:      opts.Logger,
	}
	if err := s.load(); err != nil {
		_ = flk.Unlock()
		return nil, err
	}

	s.log.Debug().
		Str("path", path).
		Int("users", len(s.users)).
		Bool("read_only", opts.ReadOnly).
		Msg("user database opened")
	return s, nil
}

// Add creates a user with the given plain-text password, hashed before
// it is stored, and persists the change.
func (s *Store) Add(name, password string, role Role) error {
	if err := validateName(name); err != nil {
		return err
	}
	if len(password) < MinPasswordLen {
		return ErrPasswordPolicy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if _, ok := s.users[name]; ok {
		return ErrExists
	}
	if len(s.users) >= s.capacity {
		return ErrStoreFull
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("userdb: hash password: %w", err)
	}

	u := &User{
		Name:      name,
		Hash:      string(hash),
		Role:      role,
		CreatedAt: s.now(),
	}
	s.users[name] = u
	s.order = append(s.order, name)

	if err := s.saveLocked(); err != nil {
		delete(s.users, name)
		s.order = s.order[:len(s.order)-1]
		return err
	}
	s.log.Info().Str("user", name).Str("role", string(role)).Msg("user added")
	return nil
}

// Authenticate checks a name/password pair. Five consecutive failures
// lock the account for the configured window; while locked, every
// attempt reports ErrLocked without being counted. A success resets the
// failure counter.
func (s *Store) Authenticate(name, password string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	u, ok := s.users[name]
	if !ok {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	if !u.LockedUntil.IsZero() {
		if now.Before(u.LockedUntil) {
			return "", ErrLocked
		}
		// The window has passed; the account gets a fresh start.
		u.LockedUntil = time.Time{}
		u.FailedAttempts = 0
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)); err != nil {
		u.FailedAttempts++
		if u.FailedAttempts >= MaxLoginAttempts {
			u.LockedUntil = now.Add(s.window)
			s.log.Warn().
				Str("user", name).
				Time("locked_until", u.LockedUntil).
				Msg("account locked after repeated failures")
		}
		s.persistBestEffort()
		return "", ErrInvalidCredentials
	}

	u.FailedAttempts = 0
	u.LastLogin = now
	s.persistBestEffort()
	return u.Role, nil
}

// Get returns a copy of the named user.
func (s *Store) Get(name string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[name]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// List returns copies of all users in the order they were added.
func (s *Store) List() []User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.users[name])
	}
	return out
}

// Len reports the number of stored users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Reload replaces the in-memory state with the file's current contents.
// The file lock is advisory, so an operator editing the database by hand
// bypasses it; reloading picks such edits up without a restart.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.load(); err != nil {
		return err
	}
	s.log.Info().Int("users", len(s.users)).Msg("user database reloaded")
	return nil
}

// Save persists the current state.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return s.saveLocked()
}

// Close flushes writable stores and releases the file lock. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var saveErr error
	if !s.readOnly {
		saveErr = s.saveLocked()
	}
	if err := s.flk.Unlock(); err != nil && saveErr == nil {
		saveErr = fmt.Errorf("userdb: release file lock: %w", err)
	}
	s.log.Debug().Str("path", s.path).Msg("user database closed")
	return saveErr
}

// load reads the backing file into memory. A missing file is an empty
// database. Callers hold the mutex or own the store exclusively.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.users = make(map[string]*User, s.capacity)
			s.order = nil
			return nil
		}
		return fmt.Errorf("userdb: read %s: %w", s.path, err)
	}

	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("userdb: parse %s: %w", s.path, err)
	}
	if f.FormatVersion == "" {
		return fmt.Errorf("userdb: %s has no format_version", s.path)
	}
	v, err := semver.NewVersion(f.FormatVersion)
	if err != nil {
		return fmt.Errorf("userdb: bad format_version %q: %w", f.FormatVersion, err)
	}
	if !formatConstraint.Check(v) {
		return fmt.Errorf("userdb: format version %s of %s is not supported (need %s)",
			f.FormatVersion, s.path, formatConstraint)
	}

	users := make(map[string]*User, len(f.Users))
	order := make([]string, 0, len(f.Users))
	for _, u := range f.Users {
		if u == nil || u.Name == "" {
			continue
		}
		if _, ok := users[u.Name]; ok {
			return fmt.Errorf("userdb: duplicate user %q in %s", u.Name, s.path)
		}
		users[u.Name] = u
		order = append(order, u.Name)
	}
	s.users = users
	s.order = order
	return nil
}

// saveLocked writes the store atomically: marshal, write a sidecar temp
// file, rename over the target. Callers hold the mutex.
func (s *Store) saveLocked() error {
	f := storeFile{FormatVersion: FormatVersion, Users: make([]*User, 0, len(s.order))}
	for _, name := range s.order {
		f.Users = append(f.Users, s.users[name])
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("userdb: encode database: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("userdb: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("userdb: replace %s: %w", s.path, err)
	}
	return nil
}

// persistBestEffort saves counter updates without failing the caller.
// Losing a lockout counter to a disk hiccup is acceptable; failing an
// authentication over it is not.
func (s *Store) persistBestEffort() {
	if s.readOnly {
		return
	}
	if err := s.saveLocked(); err != nil {
		s.log.Warn().Err(err).Msg("could not persist login bookkeeping")
	}
}

// validateName enforces the username rules: 1 to 32 printable ASCII
// characters with no whitespace. The protocol is whitespace-delimited,
// so a name containing spaces could never authenticate anyway.
func validateName(name string) error {
	if err := validate.Var(name, nameRules); err != nil {
		return ErrNameInvalid
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return ErrNameInvalid
	}
	return nil
}
