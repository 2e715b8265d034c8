package bindings

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/rockpaperscissors-desktop/internal/config"
	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
	"github.com/MJE43/rockpaperscissors-desktop/internal/round"
	"github.com/MJE43/rockpaperscissors-desktop/internal/session"
	"github.com/zalando/go-keyring"
)

type fakeRemote struct {
	mu      sync.Mutex
	records map[string]ledger.PlayerRecord
	failInc error
	key     string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: map[string]ledger.PlayerRecord{}}
}

func (f *fakeRemote) Increment(_ context.Context, name string, d ledger.Delta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInc != nil {
		return f.failInc
	}
	rec := f.records[name]
	rec.Name = name
	f.records[name] = rec.Apply(d)
	return nil
}

func (f *fakeRemote) Get(_ context.Context, name string) (ledger.PlayerRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	return rec, ok, nil
}

func (f *fakeRemote) List(context.Context) ([]ledger.PlayerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.PlayerRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) SetAPIKey(key string) {
	f.mu.Lock()
	f.key = key
	f.mu.Unlock()
}

func (f *fakeRemote) Endpoint() string { return "fake://board" }

type fixedPicker round.Move

func (p fixedPicker) Pick() round.Move { return round.Move(p) }

type event struct {
	name string
	data interface{}
}

type eventLog struct {
	mu       sync.Mutex
	events   []event
	resolved chan ResolvedEvent
}

func newEventLog() *eventLog {
	return &eventLog{resolved: make(chan ResolvedEvent, 8)}
}

func (l *eventLog) emit(_ context.Context, name string, data ...interface{}) {
	var d interface{}
	if len(data) > 0 {
		d = data[0]
	}
	l.mu.Lock()
	l.events = append(l.events, event{name, d})
	l.mu.Unlock()
	if ev, ok := d.(ResolvedEvent); ok {
		l.resolved <- ev
	}
}

func (l *eventLog) named(name string) []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []event
	for _, e := range l.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestModule(t *testing.T, remote session.Remote, opts ...round.Option) (*GameModule, *eventLog) {
	t.Helper()
	keyring.MockInit()
	cfg := config.Config{
		RemoteKind:    config.RemoteBoard,
		RemoteTimeout: time.Second,
		DataDir:       t.TempDir(),
	}
	if remote == nil {
		cfg.RemoteKind = config.RemoteNone
	}
	events := newEventLog()
	m, err := NewGameModule(cfg,
		WithEmitter(events.emit),
		WithLogger(quiet()),
		WithSessionOptions(
			session.WithLocalStore(ledger.NewMemoryStore()),
			session.WithRemote(remote),
			session.WithLogger(quiet()),
		),
		WithEngineOptions(append([]round.Option{round.WithLogger(quiet())}, opts...)...),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, events
}

func waitResolved(t *testing.T, events *eventLog) ResolvedEvent {
	t.Helper()
	select {
	case ev := <-events.resolved:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for round:resolved")
		return ResolvedEvent{}
	}
}

func TestPlayRequiresName(t *testing.T) {
	m, events := newTestModule(t, nil, round.WithAnimation(false))

	_, err := m.Play("rock")
	if !errors.Is(err, ledger.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if m.Round().State != round.Idle {
		t.Errorf("engine moved to %s", m.Round().State)
	}
	if n := len(events.named(EventResolved)); n != 0 {
		t.Errorf("unexpected resolved events: %d", n)
	}

	if _, err := m.SetPlayerName("   "); !errors.Is(err, ledger.ErrInvalidName) {
		t.Errorf("blank name: %v", err)
	}
}

func TestPlayInvalidMove(t *testing.T) {
	m, _ := newTestModule(t, nil, round.WithAnimation(false))
	m.SetPlayerName("Ada")
	if _, err := m.Play("lizard"); !errors.Is(err, round.ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestSimplePlay(t *testing.T) {
	remote := newFakeRemote()
	m, events := newTestModule(t, remote, round.WithAnimation(false), round.WithPicker(fixedPicker(round.Scissors)))

	name, err := m.SetPlayerName("  Ada ")
	if err != nil || name != "Ada" {
		t.Fatalf("SetPlayerName: %q, %v", name, err)
	}

	snap, err := m.Play("Rock")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != round.Resolved || snap.Last == nil || snap.Last.Outcome != round.Win {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	ev := waitResolved(t, events)
	if ev.Player != "Ada" || ev.Record.Wins != 1 || ev.Result.Opponent != round.Scissors {
		t.Errorf("unexpected resolved event %+v", ev)
	}
	if n := len(events.named(EventLedger)); n != 1 {
		t.Errorf("expected one ledger update, got %d", n)
	}

	board, err := m.LocalLeaderboard()
	if err != nil || len(board) != 1 || board[0].Name != "Ada" || board[0].Wins != 1 {
		t.Fatalf("local board %+v, %v", board, err)
	}

	if err := m.session.Ledger.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	global, err := m.GlobalLeaderboard()
	if err != nil || len(global) != 1 || global[0].Wins != 1 {
		t.Fatalf("global board %+v, %v", global, err)
	}

	stats, err := m.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Local.Wins != 1 || stats.Global == nil || stats.Global.Wins != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestAnimatedPlayCreditsSubmitter(t *testing.T) {
	remote := newFakeRemote()
	m, events := newTestModule(t, remote,
		round.WithSteps([]time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond}),
		round.WithPicker(fixedPicker(round.Rock)),
	)
	m.SetPlayerName("Ada")

	snap, err := m.Play("paper")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != round.Revealing {
		t.Fatalf("expected revealing, got %s", snap.State)
	}
	// a rename and a rejected move mid-reveal must not move the result
	m.SetPlayerName("Grace")
	rejected, err := m.Play("rock")
	if !errors.Is(err, round.ErrRoundInProgress) {
		t.Errorf("expected ErrRoundInProgress, got %v", err)
	}
	if rejected.Player != "Ada" || m.Round().Player != "Ada" {
		t.Errorf("round player changed: %+v", rejected)
	}

	ev := waitResolved(t, events)
	if ev.Player != "Ada" || ev.Result.Outcome != round.Win {
		t.Errorf("unexpected resolved event %+v", ev)
	}
	if n := len(events.named(EventReveal)); n != 3 {
		t.Errorf("expected 3 reveal frames, got %d", n)
	}
	if stats, _ := m.Stats(); stats.Name != "Grace" || stats.Local.Played() != 0 {
		t.Errorf("Grace should have no rounds yet: %+v", stats)
	}
}

func TestRemoteFailureEmitsEvent(t *testing.T) {
	remote := newFakeRemote()
	remote.failInc = errors.New("connection refused")
	m, events := newTestModule(t, remote, round.WithAnimation(false), round.WithPicker(fixedPicker(round.Rock)))
	m.SetPlayerName("Ada")

	if _, err := m.Play("rock"); err != nil {
		t.Fatal(err)
	}
	m.session.Ledger.Wait(context.Background())

	errs := events.named(EventRemoteError)
	if len(errs) != 1 {
		t.Fatalf("expected one remote error event, got %d", len(errs))
	}
	ev := errs[0].data.(RemoteErrorEvent)
	if ev.Op != "increment" || ev.Player != "Ada" {
		t.Errorf("unexpected payload %+v", ev)
	}
	stats, _ := m.Stats()
	if stats.Local.Ties != 1 {
		t.Errorf("local record should keep the tie: %+v", stats.Local)
	}
}

func TestResetPlayerKeepsGlobal(t *testing.T) {
	remote := newFakeRemote()
	m, events := newTestModule(t, remote, round.WithAnimation(false), round.WithPicker(fixedPicker(round.Paper)))
	m.SetPlayerName("Ada")
	m.Play("rock")
	m.session.Ledger.Wait(context.Background())

	if err := m.ResetPlayer(); err != nil {
		t.Fatal(err)
	}
	board, _ := m.LocalLeaderboard()
	if len(board) != 0 {
		t.Errorf("local board should be empty: %+v", board)
	}
	global, _ := m.GlobalLeaderboard()
	if len(global) != 1 || global[0].Losses != 1 {
		t.Errorf("global board should keep the loss: %+v", global)
	}
	updates := events.named(EventLedger)
	if last := updates[len(updates)-1].data.([]ledger.Entry); len(last) != 0 {
		t.Errorf("last ledger update should be empty: %+v", last)
	}
}

func TestResetLocalLeaderboard(t *testing.T) {
	m, _ := newTestModule(t, nil, round.WithAnimation(false))
	ctx := context.Background()
	m.session.Ledger.ApplyDelta(ctx, "Ada", ledger.Delta{Wins: 1})
	m.session.Ledger.ApplyDelta(ctx, "Grace", ledger.Delta{Ties: 1})
	m.SetPlayerName("Ada")

	if err := m.ResetLocalLeaderboard(); err != nil {
		t.Fatal(err)
	}
	board, _ := m.LocalLeaderboard()
	if len(board) != 0 {
		t.Errorf("expected empty board, got %+v", board)
	}
	if name, _ := m.PlayerName(); name != "Ada" {
		t.Errorf("player name should survive, got %q", name)
	}
	if _, err := m.GlobalLeaderboard(); !errors.Is(err, ledger.ErrRemoteDisabled) {
		t.Errorf("expected ErrRemoteDisabled, got %v", err)
	}
}

func TestShutdownCancelsReveal(t *testing.T) {
	m, events := newTestModule(t, nil, round.WithSteps([]time.Duration{time.Hour}))
	m.SetPlayerName("Ada")
	if _, err := m.Play("rock"); err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := m.Round().State; st != round.Idle {
		t.Errorf("expected idle after shutdown, got %s", st)
	}
	if _, err := m.Play("rock"); !errors.Is(err, round.ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if n := len(events.named(EventResolved)); n != 0 {
		t.Errorf("unexpected resolved events: %d", n)
	}
}

func TestRemoteInfoAndKeys(t *testing.T) {
	remote := newFakeRemote()
	m, _ := newTestModule(t, remote, round.WithAnimation(false))

	info := m.RemoteInfo()
	if !info.Enabled || info.Endpoint != "fake://board" || info.HasAPIKey {
		t.Errorf("unexpected info %+v", info)
	}
	if err := m.SaveAPIKey("secret"); err != nil {
		t.Fatal(err)
	}
	if !m.RemoteInfo().HasAPIKey || remote.key != "secret" {
		t.Errorf("key not applied: %+v %q", m.RemoteInfo(), remote.key)
	}
	if err := m.ClearAPIKey(); err != nil {
		t.Fatal(err)
	}
	if m.RemoteInfo().HasAPIKey || remote.key != "" {
		t.Errorf("key not cleared")
	}
}
