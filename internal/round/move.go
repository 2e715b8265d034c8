package round

import (
	"errors"
	"strings"

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

// ErrInvalidMove is returned for anything outside rock, paper and scissors.
var ErrInvalidMove = errors.New("round: move must be rock, paper or scissors")

// Move is one hand shape.
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

var allMoves = [3]Move{Rock, Paper, Scissors}

// beats maps each move to the one it defeats.
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Moves returns the three moves in canonical order.
func Moves() []Move {
	out := allMoves
	return out[:]
}

// ParseMove accepts a move name in any case, ignoring surrounding space.
func ParseMove(s string) (Move, error) {
	m := Move(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", ErrInvalidMove
	}
	return m, nil
}

func (m Move) Valid() bool {
	_, ok := beats[m]
	return ok
}

// Beats reports whether m defeats o.
func (m Move) Beats(o Move) bool {
	return beats[m] == o && m.Valid()
}

func (m Move) String() string { return string(m) }

// Outcome is the result of a round from the user's point of view.
type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
	Tie  Outcome = "tie"
)

// Decide compares the user's move against the opponent's.
func Decide(user, opponent Move) Outcome {
	switch {
	case user == opponent:
		return Tie
	case user.Beats(opponent):
		return Win
	default:
		return Loss
	}
}

// Delta is the single-counter increment for the outcome.
func (o Outcome) Delta() ledger.Delta {
	switch o {
	case Win:
		return ledger.Delta{Wins: 1}
	case Loss:
		return ledger.Delta{Losses: 1}
	case Tie:
		return ledger.Delta{Ties: 1}
	}
	return ledger.Delta{}
}
