// Package bindings exposes the game session to the desktop frontend. The UI
// calls GameModule methods directly and listens for its events.
package bindings

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/rockpaperscissors-desktop/internal/config"
	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
	"github.com/MJE43/rockpaperscissors-desktop/internal/round"
	"github.com/MJE43/rockpaperscissors-desktop/internal/session"
)

// Events emitted to the frontend.
const (
	EventReveal      = "round:reveal"
	EventResolved    = "round:resolved"
	EventLedger      = "ledger:updated"
	EventRemoteError = "ledger:remote-error"
	EventLedgerError = "ledger:error"
)

// Emitter sends an event to the frontend. The default is runtime.EventsEmit.
type Emitter func(ctx context.Context, name string, data ...interface{})

// ResolvedEvent is the payload of EventResolved.
type ResolvedEvent struct {
	Result round.Result        `json:"result"`
	Player string              `json:"player"`
	Record ledger.PlayerRecord `json:"record"`
}

// RemoteErrorEvent is the payload of EventRemoteError.
type RemoteErrorEvent struct {
	Op      string `json:"op"`
	Player  string `json:"player,omitempty"`
	Message string `json:"message"`
}

// PlayerStats is the current player's record in both stores.
type PlayerStats struct {
	Name   string               `json:"name"`
	Local  ledger.PlayerRecord  `json:"local"`
	Global *ledger.PlayerRecord `json:"global,omitempty"`
	// RemoteError is set when the global record could not be read.
	RemoteError string `json:"remoteError,omitempty"`
}

// GameModule is a Wails-bound service owning one round engine and one
// ledger. Resolved rounds are credited to the player who made the move.
type GameModule struct {
	ctx     context.Context
	session *session.Session
	engine  *round.Engine
	emit    Emitter
	logger  *log.Logger

	mu sync.Mutex
}

// Option configures a GameModule.
type Option func(*moduleOptions)

type moduleOptions struct {
	emit        Emitter
	logger      *log.Logger
	sessionOpts []session.Option
	engineOpts  []round.Option
}

// WithEmitter replaces runtime.EventsEmit.
func WithEmitter(e Emitter) Option {
	return func(o *moduleOptions) { o.emit = e }
}

// WithLogger sets the module logger.
func WithLogger(l *log.Logger) Option {
	return func(o *moduleOptions) { o.logger = l }
}

// WithSessionOptions passes options through to session.Open.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *moduleOptions) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// WithEngineOptions are applied after the configured ones.
func WithEngineOptions(opts ...round.Option) Option {
	return func(o *moduleOptions) { o.engineOpts = append(o.engineOpts, opts...) }
}

// NewGameModule opens the session and builds the engine but emits nothing
// until Startup.
func NewGameModule(cfg config.Config, opts ...Option) (*GameModule, error) {
	o := moduleOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(os.Stdout, "[GAME] ", log.LstdFlags)
	}
	if o.emit == nil {
		o.emit = runtime.EventsEmit
	}

	m := &GameModule{emit: o.emit, logger: o.logger}

	sessOpts := append([]session.Option{
		session.WithLedgerOptions(ledger.WithRemoteErrorHandler(m.onRemoteError)),
	}, o.sessionOpts...)
	s, err := session.Open(cfg, sessOpts...)
	if err != nil {
		return nil, err
	}
	m.session = s

	engineOpts := append(s.EngineOptions(),
		round.WithListener(round.ListenerFuncs{Reveal: m.onReveal, Resolved: m.onResolved}),
		round.WithLogger(log.New(os.Stdout, "[ROUND] ", log.LstdFlags)),
	)
	m.engine = round.NewEngine(append(engineOpts, o.engineOpts...)...)
	return m, nil
}

// Startup stores the Wails context.
func (m *GameModule) Startup(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	info := m.session.RemoteInfo()
	if info.Enabled {
		m.logger.Printf("remote leaderboard: %s at %s (api key: %v)", info.Kind, info.Endpoint, info.HasAPIKey)
	} else {
		m.logger.Printf("remote leaderboard disabled; scores are local only")
	}
	return nil
}

// Shutdown cancels any reveal, waits for pending remote submissions until
// ctx is done, and closes the local cache.
func (m *GameModule) Shutdown(ctx context.Context) error {
	m.engine.Stop()
	return m.session.Close(ctx)
}

func (m *GameModule) appContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *GameModule) send(name string, data interface{}) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	m.emit(ctx, name, data)
}

// ------------- Wails binding methods (UI calls) -------------

// PlayerName returns the stored player name, or "" when none is set.
func (m *GameModule) PlayerName() (string, error) {
	name, _, err := m.session.Ledger.PlayerName(m.appContext())
	return name, err
}

// SetPlayerName stores the trimmed name and returns it.
func (m *GameModule) SetPlayerName(name string) (string, error) {
	return m.session.Ledger.SetPlayerName(m.appContext(), name)
}

// Play submits a move for the current player. Without a player name the
// move is rejected before the engine changes state.
func (m *GameModule) Play(move string) (round.Snapshot, error) {
	mv, err := round.ParseMove(move)
	if err != nil {
		return m.engine.Snapshot(), err
	}
	name, ok, err := m.session.Ledger.PlayerName(m.appContext())
	if err != nil {
		return m.engine.Snapshot(), err
	}
	if !ok {
		return m.engine.Snapshot(), ledger.ErrInvalidName
	}
	return m.engine.SubmitMoveAs(mv, name)
}

// Round returns the current round state.
func (m *GameModule) Round() round.Snapshot {
	return m.engine.Snapshot()
}

// Stats returns the current player's local record and, when a remote store
// is configured, the global one.
func (m *GameModule) Stats() (PlayerStats, error) {
	ctx := m.appContext()
	name, ok, err := m.session.Ledger.PlayerName(ctx)
	if err != nil {
		return PlayerStats{}, err
	}
	if !ok {
		return PlayerStats{}, ledger.ErrInvalidName
	}
	local, _, err := m.session.Ledger.Record(ctx, name)
	if err != nil {
		return PlayerStats{}, err
	}
	local.Name = name
	stats := PlayerStats{Name: name, Local: local}
	if !m.session.Ledger.RemoteEnabled() {
		return stats, nil
	}
	global, found, err := m.session.Ledger.FetchGlobalRecord(ctx, name)
	switch {
	case err != nil:
		stats.RemoteError = err.Error()
	case found:
		stats.Global = &global
	}
	return stats, nil
}

// LocalLeaderboard ranks the players recorded on this machine.
func (m *GameModule) LocalLeaderboard() ([]ledger.Entry, error) {
	return m.session.Ledger.LocalLeaderboard(m.appContext())
}

// GlobalLeaderboard re-reads the shared leaderboard.
func (m *GameModule) GlobalLeaderboard() ([]ledger.Entry, error) {
	return m.session.Ledger.FetchGlobalLeaderboard(m.appContext())
}

// ResetPlayer clears the current player's local record. The shared
// leaderboard keeps its totals.
func (m *GameModule) ResetPlayer() error {
	ctx := m.appContext()
	name, ok, err := m.session.Ledger.PlayerName(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrInvalidName
	}
	if err := m.session.Ledger.ResetPlayer(ctx, name); err != nil {
		return err
	}
	m.publishLocal(ctx)
	return nil
}

// ResetLocalLeaderboard clears every local record.
func (m *GameModule) ResetLocalLeaderboard() error {
	ctx := m.appContext()
	if err := m.session.Ledger.ResetAllLocal(ctx); err != nil {
		return err
	}
	m.publishLocal(ctx)
	return nil
}

// RemoteInfo describes the remote leaderboard for a settings screen.
func (m *GameModule) RemoteInfo() session.RemoteInfo {
	return m.session.RemoteInfo()
}

// SaveAPIKey stores the remote API key in the OS keychain.
func (m *GameModule) SaveAPIKey(key string) error {
	return m.session.SaveAPIKey(key)
}

// ClearAPIKey removes the stored remote API key.
func (m *GameModule) ClearAPIKey() error {
	return m.session.ClearAPIKey()
}

// ------------- engine and ledger callbacks -------------

func (m *GameModule) onReveal(f round.Frame) {
	m.send(EventReveal, f)
}

func (m *GameModule) onResolved(res round.Result) {
	name := res.Player
	ctx := m.appContext()
	rec, err := m.session.Ledger.ApplyDelta(ctx, name, res.Delta)
	if err != nil {
		m.logger.Printf("round %s: record result for %q: %v", res.RoundID, name, err)
		m.send(EventLedgerError, err.Error())
	}
	m.send(EventResolved, ResolvedEvent{Result: res, Player: name, Record: rec})
	if err == nil {
		m.publishLocal(ctx)
	}
}

func (m *GameModule) publishLocal(ctx context.Context) {
	entries, err := m.session.Ledger.LocalLeaderboard(ctx)
	if err != nil {
		m.logger.Printf("read local leaderboard: %v", err)
		return
	}
	m.send(EventLedger, entries)
}

func (m *GameModule) onRemoteError(err *ledger.RemoteError) {
	ev := RemoteErrorEvent{Op: err.Op, Player: err.Name, Message: err.Error()}
	if errors.Is(err, context.DeadlineExceeded) {
		ev.Message = "remote leaderboard timed out"
	}
	m.send(EventRemoteError, ev)
}
