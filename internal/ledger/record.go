package ledger

import (
	"strings"
)

// Delta is a per-round increment. A round produces exactly one non-zero
// component, but deltas may be summed before they reach a store.
type Delta struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Ties   int `json:"ties"`
}

// Valid reports whether every component is non-negative. Counters only grow.
func (d Delta) Valid() bool {
	return d.Wins >= 0 && d.Losses >= 0 && d.Ties >= 0
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Wins == 0 && d.Losses == 0 && d.Ties == 0
}

// Add returns the component-wise sum.
func (d Delta) Add(o Delta) Delta {
	return Delta{Wins: d.Wins + o.Wins, Losses: d.Losses + o.Losses, Ties: d.Ties + o.Ties}
}

// PlayerRecord holds one player's cumulative results.
type PlayerRecord struct {
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Ties   int    `json:"ties"`
}

// Net is the leaderboard score: wins minus losses.
func (r PlayerRecord) Net() int { return r.Wins - r.Losses }

// Played is the number of rounds recorded.
func (r PlayerRecord) Played() int { return r.Wins + r.Losses + r.Ties }

// Apply returns the record with d added.
func (r PlayerRecord) Apply(d Delta) PlayerRecord {
	r.Wins += d.Wins
	r.Losses += d.Losses
	r.Ties += d.Ties
	return r
}

// NormalizeName trims surrounding whitespace and rejects blank names.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}
