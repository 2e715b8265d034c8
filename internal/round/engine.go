// Package round runs a single rock-paper-scissors round at a time: it takes
// the user's move, draws the opponent's, optionally plays a timed reveal of
// provisional opponent moves, and reports the outcome.
package round

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

var (
	// ErrRoundInProgress is returned when a move arrives during a reveal.
	ErrRoundInProgress = errors.New("round: a round is already being revealed")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("round: engine stopped")
)

// State of the engine.
type State int

const (
	Idle State = iota
	Revealing
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Revealing:
		return "revealing"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Frame is one provisional opponent move shown during a reveal.
type Frame struct {
	RoundID  string        `json:"roundId"`
	Step     int           `json:"step"`
	Total    int           `json:"total"`
	Opponent Move          `json:"opponent"`
	Offset   time.Duration `json:"offset"`
}

// Result is a resolved round.
type Result struct {
	RoundID    string       `json:"roundId"`
	Player     string       `json:"player,omitempty"`
	UserMove   Move         `json:"userMove"`
	Opponent   Move         `json:"opponent"`
	Outcome    Outcome      `json:"outcome"`
	Delta      ledger.Delta `json:"delta"`
	ResolvedAt time.Time    `json:"resolvedAt"`
}

// Listener receives reveal frames and results. Calls are made without the
// engine lock held, from the submitting goroutine or a timer goroutine.
type Listener interface {
	OnReveal(Frame)
	OnResolved(Result)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Reveal   func(Frame)
	Resolved func(Result)
}

func (l ListenerFuncs) OnReveal(f Frame) {
	if l.Reveal != nil {
		l.Reveal(f)
	}
}

func (l ListenerFuncs) OnResolved(r Result) {
	if l.Resolved != nil {
		l.Resolved(r)
	}
}

// Snapshot is a copy of the engine state.
type Snapshot struct {
	State       State   `json:"state"`
	RoundID     string  `json:"roundId,omitempty"`
	Player      string  `json:"player,omitempty"`
	UserMove    Move    `json:"userMove,omitempty"`
	Provisional Move    `json:"provisional,omitempty"`
	Step        int     `json:"step"`
	Total       int     `json:"total"`
	Last        *Result `json:"last,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithAnimation selects the animated reveal. On by default.
func WithAnimation(on bool) Option { return func(e *Engine) { e.animated = on } }

// WithSteps replaces RevealSteps. Offsets are measured from round start.
func WithSteps(steps []time.Duration) Option {
	return func(e *Engine) { e.steps = append([]time.Duration(nil), steps...) }
}

func WithPicker(p Picker) Option {
	return func(e *Engine) {
		if p != nil {
			e.picker = p
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.sched = s
		}
	}
}

func WithListener(l Listener) Option { return func(e *Engine) { e.listener = l } }

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine owns the round state machine. It is safe for concurrent use.
type Engine struct {
	animated bool
	steps    []time.Duration
	picker   Picker
	sched    Scheduler
	listener Listener
	logger   *log.Logger

	mu          sync.Mutex
	state       State
	roundID     string
	player      string
	user        Move
	provisional Move
	step        int
	timers      []Timer
	last        *Result
	stopped     bool
}

// NewEngine returns an idle engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		animated: true,
		steps:    append([]time.Duration(nil), RevealSteps...),
		picker:   RandomPicker{},
		sched:    clockScheduler{},
		logger:   log.New(io.Discard, "[ROUND] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitMove starts a round with the user's move. From Idle or Resolved it
// starts immediately; during a reveal it is rejected without side effects.
// In the simple variant the round is resolved before SubmitMove returns.
func (e *Engine) SubmitMove(m Move) (Snapshot, error) {
	return e.SubmitMoveAs(m, "")
}

// SubmitMoveAs is SubmitMove for a named player. The name is carried on the
// round and its Result; a rejected move leaves the running round's player.
func (e *Engine) SubmitMoveAs(m Move, player string) (Snapshot, error) {
	if !m.Valid() {
		return e.Snapshot(), ErrInvalidMove
	}

	e.mu.Lock()
	if e.stopped {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrStopped
	}
	if e.state == Revealing {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.logger.Printf("rejected %s: round %s still revealing (step %d/%d)", m, snap.RoundID, snap.Step, snap.Total)
		return snap, ErrRoundInProgress
	}

	id := uuid.NewString()
	e.roundID = id
	e.player = player
	e.user = m
	e.provisional = ""
	e.step = 0
	e.timers = e.timers[:0]

	if !e.animated || len(e.steps) == 0 {
		res := e.resolveLocked(e.picker.Pick())
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.notifyResolved(res)
		return snap, nil
	}

	e.state = Revealing
	for i, d := range e.steps {
		i := i
		e.timers = append(e.timers, e.sched.AfterFunc(d, func() { e.fire(id, i) }))
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.logger.Printf("round %s: %s submitted, revealing over %d steps", id, m, len(e.steps))
	return snap, nil
}

// fire handles reveal step i of round id. Stale or repeated steps are ignored.
func (e *Engine) fire(id string, i int) {
	e.mu.Lock()
	if e.stopped || e.state != Revealing || e.roundID != id || i < e.step {
		e.mu.Unlock()
		return
	}
	e.provisional = e.picker.Pick()
	e.step = i + 1
	frame := Frame{
		RoundID:  id,
		Step:     e.step,
		Total:    len(e.steps),
		Opponent: e.provisional,
		Offset:   e.steps[i],
	}

	var res *Result
	if e.step == len(e.steps) {
		// the committed move is a fresh draw, independent of the frames
		r := e.resolveLocked(e.picker.Pick())
		res = &r
	}
	e.mu.Unlock()

	if e.listener != nil {
		e.listener.OnReveal(frame)
	}
	if res != nil {
		e.notifyResolved(*res)
	}
}

// resolveLocked must be called with mu held.
func (e *Engine) resolveLocked(opponent Move) Result {
	outcome := Decide(e.user, opponent)
	res := Result{
		RoundID:    e.roundID,
		Player:     e.player,
		UserMove:   e.user,
		Opponent:   opponent,
		Outcome:    outcome,
		Delta:      outcome.Delta(),
		ResolvedAt: time.Now(),
	}
	e.state = Resolved
	e.timers = e.timers[:0]
	e.last = &res
	return res
}

func (e *Engine) notifyResolved(res Result) {
	e.logger.Printf("round %s: %s vs %s -> %s", res.RoundID, res.UserMove, res.Opponent, res.Outcome)
	if e.listener != nil {
		e.listener.OnResolved(res)
	}
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:       e.state,
		RoundID:     e.roundID,
		Player:      e.player,
		UserMove:    e.user,
		Provisional: e.provisional,
		Step:        e.step,
		Total:       len(e.steps),
	}
	if !e.animated {
		s.Total = 0
	}
	if e.last != nil {
		last := *e.last
		s.Last = &last
	}
	return s
}

// Stop cancels any pending reveal and rejects further moves. An abandoned
// reveal emits no result. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
	if e.state == Revealing {
		e.logger.Printf("round %s: reveal cancelled at step %d/%d", e.roundID, e.step, len(e.steps))
		e.state = Idle
	}
}
