// Package ledger keeps per-player win/loss/tie counters in a local cache and
// mirrors every increment to a shared remote store for the global leaderboard.
//
// The local cache is a personal convenience copy; the remote store is the
// only source of truth for the global view. Remote submissions are launched
// in the background and never retried, so the two may diverge after a
// failed submission until the next one succeeds.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Keys used in the local key-value store.
const (
	KeyPlayerName  = "rps.player_name"
	KeyLeaderboard = "rps.leaderboard"
)

// LocalStore is a persistent string key-value store.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// RemoteStore is a shared collection of player documents keyed by name.
// Increment must add the delta to existing counters and create the document
// when absent, so concurrent submissions accumulate in any order.
type RemoteStore interface {
	Increment(ctx context.Context, name string, d Delta) error
	Get(ctx context.Context, name string) (PlayerRecord, bool, error)
	List(ctx context.Context) ([]PlayerRecord, error)
}

// RemoteErrorHandler is called from the submitting goroutine when a
// background remote increment fails.
type RemoteErrorHandler func(err *RemoteError)

// Ledger owns the cumulative score records.
type Ledger struct {
	local         LocalStore
	remote        RemoteStore
	logger        *log.Logger
	remoteTimeout time.Duration
	onRemoteError RemoteErrorHandler

	// mu serializes read-modify-write cycles on the local snapshot.
	mu sync.Mutex

	inflight sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
	closed   bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger replaces the default "[LEDGER] " stdout logger.
func WithLogger(l *log.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithRemoteTimeout bounds each remote call. Defaults to 10 seconds.
func WithRemoteTimeout(d time.Duration) Option {
	return func(lg *Ledger) {
		if d > 0 {
			lg.remoteTimeout = d
		}
	}
}

// WithRemoteErrorHandler registers a callback for failed background submissions.
func WithRemoteErrorHandler(h RemoteErrorHandler) Option {
	return func(lg *Ledger) { lg.onRemoteError = h }
}

// New builds a ledger over a local store and an optional remote store.
// A nil remote makes the ledger local-only.
func New(local LocalStore, remote RemoteStore, opts ...Option) *Ledger {
	if local == nil {
		local = NewMemoryStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Ledger{
		local:         local,
		remote:        remote,
		logger:        log.New(os.Stdout, "[LEDGER] ", log.LstdFlags),
		remoteTimeout: 10 * time.Second,
		baseCtx:       ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RemoteEnabled reports whether a remote store is configured.
func (l *Ledger) RemoteEnabled() bool { return l.remote != nil }

// ApplyDelta adds d to the named player's local record and submits the same
// delta to the remote store in the background. The returned record is the
// new local value; remote failures are reported to the error handler only.
func (l *Ledger) ApplyDelta(ctx context.Context, name string, d Delta) (PlayerRecord, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return PlayerRecord{}, err
	}
	if !d.Valid() {
		return PlayerRecord{}, ErrInvalidDelta
	}

	l.mu.Lock()
	snap, err := l.loadSnapshot(ctx)
	if err != nil {
		l.mu.Unlock()
		return PlayerRecord{}, err
	}
	rec := snap[name]
	rec.Name = name
	rec = rec.Apply(d)
	snap[name] = rec
	err = l.saveSnapshot(ctx, snap)
	l.mu.Unlock()
	if err != nil {
		return PlayerRecord{}, err
	}

	if !d.IsZero() {
		l.submit(name, d)
	}
	return rec, nil
}

func (l *Ledger) submit(name string, d Delta) {
	if l.remote == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Printf("ledger closed; dropping remote increment for %q", name)
		return
	}
	l.inflight.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.inflight.Done()
		ctx, cancel := context.WithTimeout(l.baseCtx, l.remoteTimeout)
		defer cancel()

		if err := l.remote.Increment(ctx, name, d); err != nil {
			re := &RemoteError{Op: "increment", Name: name, Err: err}
			l.logger.Printf("%v", re)
			if l.onRemoteError != nil {
				l.onRemoteError(re)
			}
		}
	}()
}

// Record returns the local record for name.
func (l *Ledger) Record(ctx context.Context, name string) (PlayerRecord, bool, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return PlayerRecord{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, err := l.loadSnapshot(ctx)
	if err != nil {
		return PlayerRecord{}, false, err
	}
	rec, ok := snap[name]
	return rec, ok, nil
}

// LocalLeaderboard ranks the locally cached records. Names are ordered
// alphabetically before the stable sort so equal scores list predictably.
func (l *Ledger) LocalLeaderboard(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	snap, err := l.loadSnapshot(ctx)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	records := make([]PlayerRecord, 0, len(snap))
	for _, r := range snap {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return Rank(records), nil
}

// FetchGlobalLeaderboard re-reads every remote record and ranks them.
func (l *Ledger) FetchGlobalLeaderboard(ctx context.Context) ([]Entry, error) {
	if l.remote == nil {
		return nil, ErrRemoteDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, l.remoteTimeout)
	defer cancel()

	records, err := l.remote.List(ctx)
	if err != nil {
		re := &RemoteError{Op: "list", Err: err}
		l.logger.Printf("%v", re)
		return nil, re
	}
	return Rank(records), nil
}

// FetchGlobalRecord reads one player's remote totals.
func (l *Ledger) FetchGlobalRecord(ctx context.Context, name string) (PlayerRecord, bool, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return PlayerRecord{}, false, err
	}
	if l.remote == nil {
		return PlayerRecord{}, false, ErrRemoteDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, l.remoteTimeout)
	defer cancel()

	rec, ok, err := l.remote.Get(ctx, name)
	if err != nil {
		return PlayerRecord{}, false, &RemoteError{Op: "get", Name: name, Err: err}
	}
	return rec, ok, nil
}

// ResetPlayer removes the named record from the local cache. The remote
// store is left untouched. Resetting an unknown name is a no-op.
func (l *Ledger) ResetPlayer(ctx context.Context, name string) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, err := l.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	if _, ok := snap[name]; !ok {
		return nil
	}
	delete(snap, name)
	return l.saveSnapshot(ctx, snap)
}

// ResetAllLocal clears every locally cached record.
func (l *Ledger) ResetAllLocal(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.local.Remove(ctx, KeyLeaderboard); err != nil {
		return fmt.Errorf("ledger: clear local snapshot: %w", err)
	}
	return nil
}

// PlayerName returns the persisted player name, if any.
func (l *Ledger) PlayerName(ctx context.Context) (string, bool, error) {
	v, ok, err := l.local.Get(ctx, KeyPlayerName)
	if err != nil {
		return "", false, fmt.Errorf("ledger: read player name: %w", err)
	}
	return v, ok && v != "", nil
}

// SetPlayerName validates and persists the player name.
func (l *Ledger) SetPlayerName(ctx context.Context, name string) (string, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	if err := l.local.Set(ctx, KeyPlayerName, name); err != nil {
		return "", fmt.Errorf("ledger: save player name: %w", err)
	}
	return name, nil
}

// Wait blocks until all in-flight remote submissions finish or ctx is done.
func (l *Ledger) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting remote submissions, drains the in-flight ones until
// ctx expires, then cancels whatever is left.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	err := l.Wait(ctx)
	l.cancel()
	return err
}

// loadSnapshot must be called with mu held.
func (l *Ledger) loadSnapshot(ctx context.Context) (map[string]PlayerRecord, error) {
	raw, ok, err := l.local.Get(ctx, KeyLeaderboard)
	if err != nil {
		return nil, fmt.Errorf("ledger: read local snapshot: %w", err)
	}
	snap := map[string]PlayerRecord{}
	if !ok || raw == "" {
		return snap, nil
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("ledger: decode local snapshot: %w", err)
	}
	if snap == nil {
		// a stored JSON null decodes to a nil map
		snap = map[string]PlayerRecord{}
	}
	for name, rec := range snap {
		rec.Name = name
		snap[name] = rec
	}
	return snap, nil
}

// saveSnapshot must be called with mu held.
func (l *Ledger) saveSnapshot(ctx context.Context, snap map[string]PlayerRecord) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ledger: encode local snapshot: %w", err)
	}
	if err := l.local.Set(ctx, KeyLeaderboard, string(raw)); err != nil {
		return fmt.Errorf("ledger: write local snapshot: %w", err)
	}
	return nil
}
