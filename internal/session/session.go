// Package session assembles a game session from configuration: the local
// cache, the selected remote store with its API key, the ledger, and the
// opponent picker the round engine uses.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/MJE43/rockpaperscissors-desktop/internal/config"
	"github.com/MJE43/rockpaperscissors-desktop/internal/credentials"
	"github.com/MJE43/rockpaperscissors-desktop/internal/firestore"
	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
	"github.com/MJE43/rockpaperscissors-desktop/internal/localstore"
	"github.com/MJE43/rockpaperscissors-desktop/internal/remote"
	"github.com/MJE43/rockpaperscissors-desktop/internal/round"
)

// UserAgent identifies the game to the leaderboard service.
const UserAgent = "rockpaperscissors-desktop"

// RemoteInfo describes the configured remote store for display.
type RemoteInfo struct {
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	Enabled   bool   `json:"enabled"`
	HasAPIKey bool   `json:"hasApiKey"`
}

// Remote is a remote store whose API key can be replaced at runtime.
type Remote interface {
	ledger.RemoteStore
	SetAPIKey(key string)
	Endpoint() string
}

// Session is the wiring shared by the desktop and terminal clients.
type Session struct {
	Config config.Config
	Ledger *ledger.Ledger

	creds  *credentials.Store
	remote Remote
	closer func() error
	logger *log.Logger

	mu     sync.RWMutex
	hasKey bool
}

// Option configures Open.
type Option func(*options)

type options struct {
	local      ledger.LocalStore
	remote     Remote
	remoteSet  bool
	creds      *credentials.Store
	logger     *log.Logger
	ledgerOpts []ledger.Option
}

// WithLocalStore replaces the SQLite cache (tests use ledger.NewMemoryStore).
func WithLocalStore(s ledger.LocalStore) Option {
	return func(o *options) { o.local = s }
}

// WithRemote replaces the remote store built from the configuration. A nil
// client makes the session local-only.
func WithRemote(c Remote) Option {
	return func(o *options) {
		o.remote = c
		o.remoteSet = true
	}
}

// WithCredentials replaces the keyring-backed credential store.
func WithCredentials(c *credentials.Store) Option {
	return func(o *options) { o.creds = c }
}

// WithLogger sets the session logger; the ledger logs through it too.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLedgerOptions appends ledger options (for example an error handler).
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(o *options) { o.ledgerOpts = append(o.ledgerOpts, opts...) }
}

// Open builds a session. A local cache that cannot be opened degrades to an
// in-memory store; an unusable remote configuration is an error.
func Open(cfg config.Config, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(os.Stdout, "[LEDGER] ", log.LstdFlags)
	}
	if o.creds == nil {
		o.creds = credentials.New(credentials.DefaultService, cfg.SecretsFallbackPath())
	}

	s := &Session{Config: cfg, creds: o.creds, logger: o.logger, closer: func() error { return nil }}

	local := o.local
	if local == nil {
		store, err := localstore.Open(cfg.LocalDBPath())
		if err != nil {
			o.logger.Printf("local cache unavailable, scores last for this session only: %v", err)
			local = ledger.NewMemoryStore()
		} else {
			local = store
			s.closer = store.Close
		}
	}

	key, err := o.creds.Resolve(cfg.RemoteKind, cfg.ExplicitAPIKey())
	if err != nil {
		o.logger.Printf("read stored api key: %v", err)
	}
	if o.remoteSet {
		s.remote = o.remote
	} else {
		s.remote, err = newRemote(cfg)
		if err != nil {
			s.closer()
			return nil, err
		}
	}
	if s.remote != nil && key != "" {
		s.remote.SetAPIKey(key)
		s.hasKey = true
	}

	ledgerOpts := append([]ledger.Option{
		ledger.WithLogger(o.logger),
		ledger.WithRemoteTimeout(cfg.RemoteTimeout),
	}, o.ledgerOpts...)
	var rs ledger.RemoteStore
	if s.remote != nil {
		rs = s.remote
	}
	s.Ledger = ledger.New(local, rs, ledgerOpts...)
	return s, nil
}

func newRemote(cfg config.Config) (Remote, error) {
	switch cfg.RemoteKind {
	case config.RemoteNone:
		return nil, nil
	case config.RemoteFirestore:
		c, err := firestore.NewClient(firestore.Config{
			ProjectID:  cfg.FirebaseProjectID,
			Collection: cfg.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		return c, nil
	case config.RemoteBoard:
		return remote.NewClient(remote.Config{
			BaseURL:    cfg.BoardURL,
			Project:    cfg.BoardProject,
			Collection: cfg.Collection,
			UserAgent:  UserAgent,
		}), nil
	}
	return nil, fmt.Errorf("session: unknown remote kind %q", cfg.RemoteKind)
}

// Picker returns the opponent picker: seeded when an opponent seed is
// configured, uniform random otherwise.
func (s *Session) Picker() round.Picker {
	if s.Config.OpponentSeed != "" {
		return round.NewSeededPicker(s.Config.OpponentSeed, s.Config.ClientSeed, 0)
	}
	return round.RandomPicker{}
}

// EngineOptions returns the engine options implied by the configuration.
func (s *Session) EngineOptions() []round.Option {
	return []round.Option{
		round.WithAnimation(s.Config.Animated),
		round.WithPicker(s.Picker()),
	}
}

// RemoteInfo reports the remote backend and whether a key is in use.
func (s *Session) RemoteInfo() RemoteInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := RemoteInfo{Kind: s.Config.RemoteKind, HasAPIKey: s.hasKey}
	if s.remote != nil {
		info.Enabled = true
		info.Endpoint = s.remote.Endpoint()
	}
	return info
}

// SaveAPIKey stores key in the keyring and applies it to the live client.
func (s *Session) SaveAPIKey(key string) error {
	if s.remote == nil {
		return ledger.ErrRemoteDisabled
	}
	if err := s.creds.SetAPIKey(s.Config.RemoteKind, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote.SetAPIKey(key)
	s.hasKey = true
	return nil
}

// ClearAPIKey removes the stored key. A key given in the environment stays
// in effect.
func (s *Session) ClearAPIKey() error {
	if s.remote == nil {
		return ledger.ErrRemoteDisabled
	}
	if err := s.creds.DeleteAPIKey(s.Config.RemoteKind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	explicit := s.Config.ExplicitAPIKey()
	s.remote.SetAPIKey(explicit)
	s.hasKey = explicit != ""
	return nil
}

// Close drains pending remote submissions, then closes the local cache.
func (s *Session) Close(ctx context.Context) error {
	lerr := s.Ledger.Close(ctx)
	cerr := s.closer()
	return errors.Join(lerr, cerr)
}
