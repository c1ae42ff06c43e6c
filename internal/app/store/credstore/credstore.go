// internal/app/store/credstore/credstore.go

// Package credstore is the process-wide durable credential store. It holds
// the current session token and the cached user-profile snapshot under
// string keys, surviving restarts.
//
// The backing file is a single JSON map sealed with ChaCha20-Poly1305 and
// replaced atomically on every write, so the token and profile are either
// both persisted or neither is.
package credstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/memberlink/memberlink/internal/domain/models"
)

// Well-known keys. Values are strings; structured values are JSON-encoded.
const (
	KeySessionToken   = "session.token"
	KeySessionProfile = "session.profile"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("credstore: key not found")

// Store is a durable, encrypted key/value store.
type Store struct {
	mu   sync.Mutex
	path string
	aead [32]byte // ChaCha20-Poly1305 key
}

// Open creates a Store backed by the file at path. The encryption key is
// derived from secret; an empty secret is rejected so a misconfigured
// deployment cannot silently write with a well-known key.
func Open(path, secret string) (*Store, error) {
	if secret == "" {
		return nil, errors.New("credstore: secret must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credstore: create dir: %w", err)
	}
	s := &Store{path: path}
	s.aead = sha256.Sum256([]byte(secret))
	return s, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.load()
	if err != nil {
		return err
	}
	m[key] = value
	return s.save(m)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.load()
	if err != nil {
		return err
	}
	delete(m, key)
	return s.save(m)
}

// SaveSession persists the token and profile snapshot in one write.
// A failed identity exchange therefore never leaves a partial session.
func (s *Store) SaveSession(ctx context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("credstore: encode profile: %w", err)
	}
	m, err := s.load()
	if err != nil {
		return err
	}
	m[KeySessionToken] = sess.Token
	m[KeySessionProfile] = string(profile)
	return s.save(m)
}

// LoadSession reads the stored session. ok is false when no token is
// persisted. A profile snapshot that fails to decode is dropped rather
// than failing the load; the token alone is sufficient for routing.
func (s *Store) LoadSession(ctx context.Context) (sess models.Session, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.Session{}, false, err
	}
	m, err := s.load()
	if err != nil {
		return models.Session{}, false, err
	}
	token, found := m[KeySessionToken]
	if !found || token == "" {
		return models.Session{}, false, nil
	}
	sess.Token = token
	if raw, found := m[KeySessionProfile]; found {
		if err := json.Unmarshal([]byte(raw), &sess.Profile); err != nil {
			sess.Profile = models.UserProfile{}
		}
	}
	return sess, true, nil
}

// ClearSession removes the token and profile in one write. Used on explicit
// sign-out.
func (s *Store) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.load()
	if err != nil {
		return err
	}
	delete(m, KeySessionToken)
	delete(m, KeySessionProfile)
	return s.save(m)
}

// load reads and decrypts the backing file. A missing file is an empty store.
// Callers must hold s.mu.
func (s *Store) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.aead[:])
	if err != nil {
		return nil, fmt.Errorf("credstore: cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, errors.New("credstore: file truncated")
	}
	nonce, box := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("credstore: decrypt: %w", err)
	}

	m := map[string]string{}
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("credstore: decode: %w", err)
	}
	return m, nil
}

// save encrypts and atomically replaces the backing file.
// Callers must hold s.mu.
func (s *Store) save(m map[string]string) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.aead[:])
	if err != nil {
		return fmt.Errorf("credstore: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("credstore: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("credstore: replace: %w", err)
	}
	return nil
}
