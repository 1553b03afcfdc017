// Package session persists the minimal authenticated session state (bearer
// token, role, agency scope). The upstream auth service issues the token;
// nothing else is stored locally.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrReauthRequired signals that no usable session exists and the user must
// authenticate again.
var ErrReauthRequired = errors.New("re-authentication required")

// Session is the persisted state. Kept deliberately minimal: role and agency
// drive the push-channel topic set, the token authenticates upstream calls.
type Session struct {
	Token    string `json:"token"`
	Role     string `json:"role"`
	AgencyID string `json:"agencyId,omitempty"`
}

// Store reads and writes the session file. Corrupted contents are cleared on
// read rather than trusted, forcing re-authentication.
type Store struct {
	path   string
	secret []byte
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

func NewStore(path string, jwtSecret string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		secret: []byte(jwtSecret),
		logger: logger.With("component", "session"),
	}
}

// Load returns the persisted session. A missing file, corrupted JSON or an
// expired token all yield ErrReauthRequired; corrupted state is cleared so
// the next login starts fresh.
func (s *Store) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return s.current, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReauthRequired
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Token == "" {
		s.logger.Warn("session file corrupted, clearing", "path", s.path, "error", err)
		s.clearLocked()
		return nil, ErrReauthRequired
	}

	if err := s.verifyToken(sess.Token); err != nil {
		s.logger.Warn("stored token rejected, clearing session", "error", err)
		s.clearLocked()
		return nil, ErrReauthRequired
	}

	s.current = &sess
	return s.current, nil
}

// Save persists a fresh session after login.
func (s *Store) Save(sess Session) error {
	if sess.Token == "" {
		return errors.New("session token is required")
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	return nil
}

// Clear removes the persisted session (logout).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.current = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove session file", "path", s.path, "error", err)
	}
}

// Token implements the upstream client's TokenProvider.
func (s *Store) Token() (string, error) {
	sess, err := s.Load()
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// verifyToken checks signature and expiry of the upstream-issued JWT.
func (s *Store) verifyToken(token string) error {
	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	return err
}
