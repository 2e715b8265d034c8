package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Entry is one ranked leaderboard row.
type Entry struct {
	Rank int `json:"rank"`
	PlayerRecord
	Net     int             `json:"net"`
	WinRate decimal.Decimal `json:"winRate"`
}

// SortLeaderboard orders records by wins minus losses, highest first.
// Records with the same net score keep their input order.
func SortLeaderboard(records []PlayerRecord) []PlayerRecord {
	out := make([]PlayerRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Net() > out[j].Net()
	})
	return out
}

// Rank sorts records and attaches competition ranks (1, 2, 2, 4).
func Rank(records []PlayerRecord) []Entry {
	sorted := SortLeaderboard(records)
	entries := make([]Entry, len(sorted))
	for i, r := range sorted {
		rank := i + 1
		if i > 0 && r.Net() == sorted[i-1].Net() {
			rank = entries[i-1].Rank
		}
		entries[i] = Entry{
			Rank:         rank,
			PlayerRecord: r,
			Net:          r.Net(),
			WinRate:      winRate(r),
		}
	}
	return entries
}

// winRate is wins over rounds played, four decimal places; zero when unplayed.
func winRate(r PlayerRecord) decimal.Decimal {
	played := r.Played()
	if played == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.Wins)).DivRound(decimal.NewFromInt(int64(played)), 4)
}
