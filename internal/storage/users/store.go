// Package users stores registered accounts and the active CLI session.
// Passwords are kept as bcrypt hashes only.
package users

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/valutetrade/hub/internal/domain"
)

const minPasswordLen = 4

// Store is a file-backed user registry with an adjacent session file.
type Store struct {
	path        string
	sessionPath string
	lock        *flock.Flock
}

// NewStore creates a user store; sessionPath holds the logged-in identity.
func NewStore(path, sessionPath string) *Store {
	return &Store{
		path:        path,
		sessionPath: sessionPath,
		lock:        flock.New(path + ".lock"),
	}
}

type userEntry struct {
	ID           string `json:"user_id"`
	PasswordHash string `json:"password_hash"`
	RegisteredAt string `json:"registered_at"`
}

type session struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	LoggedInAt string `json:"logged_in_at"`
}

// Register creates a new user with a bcrypt-hashed password.
func (s *Store) Register(username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "username cannot be empty")
	}
	if len(password) < minPasswordLen {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "password must be at least %d characters", minPasswordLen)
	}

	if err := s.lock.Lock(); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "acquire users lock")}
	}
	defer s.lock.Unlock()

	all, err := s.read()
	if err != nil {
		return nil, err
	}
	if _, taken := all[username]; taken {
		return nil, errors.Wrapf(domain.ErrUserExists, "username %q", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		RegisteredAt: time.Now().UTC(),
	}

	all[username] = userEntry{
		ID:           user.ID,
		PasswordHash: user.PasswordHash,
		RegisteredAt: user.RegisteredAt.Format(time.RFC3339Nano),
	}

	if err := s.write(all); err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies the password and returns the stored user.
func (s *Store) Authenticate(username, password string) (*domain.User, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "acquire users lock")}
	}
	defer s.lock.Unlock()

	all, err := s.read()
	if err != nil {
		return nil, err
	}

	entry, ok := all[username]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUserNotFound, "username %q", username)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidPassword
	}

	registeredAt, err := time.Parse(time.RFC3339Nano, entry.RegisteredAt)
	if err != nil {
		registeredAt = time.Time{}
	}

	return &domain.User{
		ID:           entry.ID,
		Username:     username,
		PasswordHash: entry.PasswordHash,
		RegisteredAt: registeredAt,
	}, nil
}

// SaveSession records the logged-in user for subsequent commands.
func (s *Store) SaveSession(user *domain.User) error {
	payload, err := json.MarshalIndent(session{
		UserID:     user.ID,
		Username:   user.Username,
		LoggedInAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	if err := os.MkdirAll(filepath.Dir(s.sessionPath), 0o755); err != nil {
		return &domain.PersistenceError{Path: s.sessionPath, Err: errors.Wrap(err, "create data dir")}
	}
	if err := os.WriteFile(s.sessionPath, payload, 0o600); err != nil {
		return &domain.PersistenceError{Path: s.sessionPath, Err: errors.Wrap(err, "write session")}
	}
	return nil
}

// CurrentUser resolves the active session to a user id and name.
func (s *Store) CurrentUser() (userID, username string, err error) {
	payload, err := os.ReadFile(s.sessionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", domain.ErrNotLoggedIn
		}
		return "", "", &domain.PersistenceError{Path: s.sessionPath, Err: errors.Wrap(err, "read session")}
	}

	var sess session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return "", "", &domain.PersistenceError{Path: s.sessionPath, Err: errors.Wrap(err, "decode session")}
	}
	if sess.UserID == "" {
		return "", "", domain.ErrNotLoggedIn
	}

	return sess.UserID, sess.Username, nil
}

func (s *Store) read() (map[string]userEntry, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]userEntry), nil
		}
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "read users")}
	}

	var all map[string]userEntry
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "decode users")}
	}
	if all == nil {
		all = make(map[string]userEntry)
	}
	return all, nil
}

func (s *Store) write(all map[string]userEntry) error {
	payload, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "encode users")}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "create data dir")}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "write users")}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "replace users")}
	}

	return nil
}
