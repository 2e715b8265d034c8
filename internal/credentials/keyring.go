// Package credentials keeps remote-store API keys in the OS keychain, with
// a JSON file fallback for machines that have no keyring service.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no key is stored for a backend.
var ErrNotFound = keyring.ErrNotFound

// DefaultService is the keychain service name.
const DefaultService = "rockpaperscissors-desktop"

// Store wraps the OS keychain. Keys are stored per backend ("board",
// "firestore") so switching backends keeps both.
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// New creates a keychain wrapper. fallbackPath may be empty to disable the
// file fallback.
func New(service, fallbackPath string) *Store {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Store{service: service, fallbackPath: fallbackPath}
}

func account(backend string) (string, error) {
	backend = strings.TrimSpace(backend)
	if backend == "" {
		return "", errors.New("credentials: backend name is required")
	}
	return backend + "/apikey", nil
}

// SetAPIKey stores the key for backend.
func (s *Store) SetAPIKey(backend, value string) error {
	acct, err := account(backend)
	if err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("credentials: api key is empty")
	}
	err = keyring.Set(s.service, acct, value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("credentials: keyring set: %w", err)
	}
	return s.updateFallback(func(m fallbackSecrets) { m[acct] = value })
}

// APIKey returns the stored key for backend, or ErrNotFound.
func (s *Store) APIKey(backend string) (string, error) {
	acct, err := account(backend)
	if err != nil {
		return "", err
	}
	val, err := keyring.Get(s.service, acct)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("credentials: keyring get: %w", err)
	}

	data, ferr := s.readFallback()
	if ferr != nil {
		return "", ferr
	}
	if v, ok := data[acct]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

// DeleteAPIKey removes the key from the keychain and the fallback file.
// Deleting a missing key is not an error.
func (s *Store) DeleteAPIKey(backend string) error {
	acct, err := account(backend)
	if err != nil {
		return err
	}
	kerr := keyring.Delete(s.service, acct)
	ferr := s.updateFallback(func(m fallbackSecrets) { delete(m, acct) })
	if kerr != nil && !errors.Is(kerr, keyring.ErrNotFound) && !isKeyringUnavailable(kerr) {
		return fmt.Errorf("credentials: keyring delete: %w", kerr)
	}
	if s.fallbackPath == "" {
		return nil
	}
	return ferr
}

// Resolve prefers an explicit key (from the environment) over a stored one.
func (s *Store) Resolve(backend, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	v, err := s.APIKey(backend)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackSecrets map[string]string

func (s *Store) updateFallback(fn func(fallbackSecrets)) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return errors.New("credentials: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	fn(data)
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("credentials: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("credentials: encode fallback: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("credentials: write fallback: %w", err)
	}
	return nil
}

func (s *Store) readFallback() (fallbackSecrets, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fallbackSecrets{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFallbackUnlocked()
}

func (s *Store) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(s.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("credentials: decode fallback: %w", err)
	}
	return out, nil
}
