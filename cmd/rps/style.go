package main

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"

	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
	"github.com/MJE43/rockpaperscissors-desktop/internal/round"
	"github.com/MJE43/rockpaperscissors-desktop/internal/session"
)

var hundred = decimal.NewFromInt(100)

func glyph(m round.Move) string {
	switch m {
	case round.Rock:
		return "✊"
	case round.Paper:
		return "✋"
	case round.Scissors:
		return "✌️"
	}
	return "?"
}

func printOutcome(res round.Result, rec ledger.PlayerRecord) {
	var title string
	switch res.Outcome {
	case round.Win:
		title = pterm.LightGreen("|YOU WIN|")
	case round.Loss:
		title = pterm.LightRed("|YOU LOSE|")
	default:
		title = pterm.LightYellow("|TIE|")
	}
	body := pterm.Sprintfln("You %s %s  vs  %s %s computer", glyph(res.UserMove), res.UserMove, res.Opponent, glyph(res.Opponent)) +
		pterm.Sprintf("%s: %d W / %d L / %d T", rec.Name, rec.Wins, rec.Losses, rec.Ties)
	pterm.DefaultBox.WithHorizontalPadding(4).WithTitle(title).WithTitleTopCenter().Println(body)
}

func printBoard(title string, entries []ledger.Entry) {
	pterm.DefaultSection.Println(title)
	if len(entries) == 0 {
		pterm.Info.Println("No scores yet.")
		return
	}
	data := pterm.TableData{{"#", "Name", "Wins", "Losses", "Ties", "Net", "Win rate"}}
	for _, e := range entries {
		data = append(data, []string{
			strconv.Itoa(e.Rank),
			e.Name,
			strconv.Itoa(e.Wins),
			strconv.Itoa(e.Losses),
			strconv.Itoa(e.Ties),
			strconv.Itoa(e.Net),
			e.WinRate.Mul(hundred).StringFixed(1) + "%",
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func recordRow(label string, r ledger.PlayerRecord) []string {
	return []string{label, strconv.Itoa(r.Wins), strconv.Itoa(r.Losses), strconv.Itoa(r.Ties), strconv.Itoa(r.Net())}
}

func printRemoteInfo(info session.RemoteInfo) {
	if !info.Enabled {
		pterm.Info.Println("Global leaderboard disabled; scores stay on this computer.")
		return
	}
	key := "no api key"
	if info.HasAPIKey {
		key = "api key set"
	}
	pterm.Info.Printfln("Global leaderboard: %s (%s, %s)", info.Endpoint, info.Kind, key)
}
