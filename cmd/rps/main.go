// Command rps plays rock, paper, scissors in the terminal, sharing the
// local cache and remote leaderboard with the desktop app.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/MJE43/rockpaperscissors-desktop/internal/config"
	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
	"github.com/MJE43/rockpaperscissors-desktop/internal/round"
	"github.com/MJE43/rockpaperscissors-desktop/internal/session"
)

const (
	actLeaderboards = "Leaderboards"
	actStats        = "My stats"
	actResetMe      = "Reset my score"
	actResetAll     = "Reset local leaderboard"
	actRename       = "Change name"
	actAPIKey       = "Set API key"
	actQuit         = "Quit"
)

type game struct {
	ctx     context.Context
	sess    *session.Session
	engine  *round.Engine
	logger  *slog.Logger
	name    string
	frames  chan round.Frame
	results chan round.Result
	remote  chan *ledger.RemoteError
}

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	handler := pterm.NewSlogHandler(&pterm.DefaultLogger)
	logger := slog.New(handler)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	g := &game{
		ctx:     context.Background(),
		logger:  logger,
		frames:  make(chan round.Frame, len(round.RevealSteps)+1),
		results: make(chan round.Result, 1),
		remote:  make(chan *ledger.RemoteError, 16),
	}
	g.sess, err = session.Open(cfg,
		session.WithLogger(slog.NewLogLogger(handler, slog.LevelWarn)),
		session.WithLedgerOptions(ledger.WithRemoteErrorHandler(func(re *ledger.RemoteError) {
			select {
			case g.remote <- re:
			default:
			}
		})),
	)
	if err != nil {
		logger.Error("could not start session", "error", err)
		os.Exit(1)
	}
	g.engine = round.NewEngine(append(g.sess.EngineOptions(),
		round.WithListener(round.ListenerFuncs{
			Reveal:   func(f round.Frame) { g.frames <- f },
			Resolved: func(r round.Result) { g.results <- r },
		}),
	)...)

	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("R", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("P", pterm.FgGreen.ToStyle()),
		putils.LettersFromStringWithStyle("S", pterm.FgCyan.ToStyle()),
	).Render()
	printRemoteInfo(g.sess.RemoteInfo())

	if err := g.loop(); err != nil {
		logger.Error("game stopped", "error", err)
	}
	g.shutdown()
}

func (g *game) loop() error {
	name, ok, err := g.sess.Ledger.PlayerName(g.ctx)
	if err != nil {
		return err
	}
	if ok {
		g.name = name
		pterm.Info.Printfln("Welcome back, %s", pterm.LightCyan(name))
	} else if err := g.askName(); err != nil {
		return err
	}

	options := []string{"Rock", "Paper", "Scissors", actLeaderboards, actStats, actResetMe, actResetAll, actRename}
	if g.sess.RemoteInfo().Enabled {
		options = append(options, actAPIKey)
	}
	options = append(options, actQuit)

	for {
		choice, err := pterm.DefaultInteractiveSelect.WithDefaultText("Your move").WithOptions(options).Show()
		if err != nil {
			return err
		}
		switch choice {
		case actQuit:
			return nil
		case actLeaderboards:
			g.showLeaderboards()
		case actStats:
			g.showStats()
		case actResetMe:
			if err := g.sess.Ledger.ResetPlayer(g.ctx, g.name); err != nil {
				pterm.Error.Println(err)
				continue
			}
			pterm.Success.Printfln("Local score for %s cleared; the global leaderboard keeps it.", g.name)
		case actResetAll:
			confirm, _ := pterm.DefaultInteractiveConfirm.WithDefaultText("Clear every score stored on this computer?").Show()
			if !confirm {
				continue
			}
			if err := g.sess.Ledger.ResetAllLocal(g.ctx); err != nil {
				pterm.Error.Println(err)
				continue
			}
			pterm.Success.Println("Local leaderboard cleared.")
		case actRename:
			if err := g.askName(); err != nil {
				return err
			}
		case actAPIKey:
			key, _ := pterm.DefaultInteractiveTextInput.WithMask("*").WithDefaultText("API key").Show()
			if err := g.sess.SaveAPIKey(key); err != nil {
				pterm.Error.Println(err)
				continue
			}
			pterm.Success.Println("API key saved to the keychain.")
		default:
			mv, err := round.ParseMove(choice)
			if err != nil {
				pterm.Error.Println(err)
				continue
			}
			if err := g.play(mv); err != nil {
				pterm.Error.Println(err)
			}
		}
		g.reportRemoteErrors()
	}
}

func (g *game) askName() error {
	for {
		input, err := pterm.DefaultInteractiveTextInput.WithDefaultText("Enter your name").Show()
		if err != nil {
			return err
		}
		name, err := g.sess.Ledger.SetPlayerName(g.ctx, input)
		if errors.Is(err, ledger.ErrInvalidName) {
			pterm.Warning.Println("The name cannot be blank.")
			continue
		}
		if err != nil {
			return err
		}
		g.name = name
		pterm.Info.Printfln("Playing as %s", pterm.LightCyan(name))
		return nil
	}
}

func (g *game) play(mv round.Move) error {
	// frames of an earlier reveal can trail its result
	for len(g.frames) > 0 {
		<-g.frames
	}
	snap, err := g.engine.SubmitMoveAs(mv, g.name)
	if err != nil {
		return err
	}

	var res round.Result
	if snap.State == round.Revealing {
		spinner, _ := pterm.DefaultSpinner.Start("The computer is choosing...")
		for done := false; !done; {
			select {
			case f := <-g.frames:
				spinner.UpdateText(fmt.Sprintf("%s vs %s  (%d/%d)", glyph(mv), glyph(f.Opponent), f.Step, f.Total))
			case res = <-g.results:
				done = true
			}
		}
		spinner.Stop()
	} else {
		res = <-g.results
	}

	rec, err := g.sess.Ledger.ApplyDelta(g.ctx, res.Player, res.Delta)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	printOutcome(res, rec)
	return nil
}

func (g *game) showLeaderboards() {
	local, err := g.sess.Ledger.LocalLeaderboard(g.ctx)
	if err != nil {
		pterm.Error.Println(err)
	} else {
		printBoard("This computer", local)
	}

	if !g.sess.Ledger.RemoteEnabled() {
		pterm.Info.Println("Global leaderboard disabled (RPS_REMOTE_KIND=none).")
		return
	}
	spinner, _ := pterm.DefaultSpinner.Start("Fetching the global leaderboard...")
	global, err := g.sess.Ledger.FetchGlobalLeaderboard(g.ctx)
	if err != nil {
		spinner.Fail(err.Error())
		return
	}
	spinner.Success(fmt.Sprintf("%d players", len(global)))
	printBoard("Global", global)
}

func (g *game) showStats() {
	local, _, err := g.sess.Ledger.Record(g.ctx, g.name)
	if err != nil {
		pterm.Error.Println(err)
		return
	}
	local.Name = g.name
	rows := [][]string{{"", "Wins", "Losses", "Ties", "Net"}, recordRow("Local", local)}
	if g.sess.Ledger.RemoteEnabled() {
		global, found, err := g.sess.Ledger.FetchGlobalRecord(g.ctx, g.name)
		switch {
		case err != nil:
			g.logger.Warn("global record unavailable", "error", err)
		case found:
			rows = append(rows, recordRow("Global", global))
		default:
			rows = append(rows, recordRow("Global", ledger.PlayerRecord{Name: g.name}))
		}
	}
	pterm.DefaultSection.Println(g.name)
	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData(rows)).Render()
}

func (g *game) reportRemoteErrors() {
	for {
		select {
		case re := <-g.remote:
			g.logger.Warn("global leaderboard not updated", "op", re.Op, "player", re.Name, "error", re.Err)
		default:
			return
		}
	}
}

func (g *game) shutdown() {
	g.engine.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.sess.Close(ctx); err != nil {
		g.logger.Warn("pending submissions abandoned", "error", err)
	}
	g.reportRemoteErrors()
	pterm.Info.Println("Bye!")
}
