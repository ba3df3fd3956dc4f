package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justinabrahms/gomokuvault/internal/config"
	"github.com/justinabrahms/gomokuvault/internal/eventstream"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/lobby"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printfln("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		pterm.Error.Printfln("Invalid config: %v", err)
		os.Exit(1)
	}

	// The terminal belongs to the view; logs go to stderr and only when asked.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if cfg.Development.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + cfg.Ledger.RPCURL)
	client, err := ledger.Dial(ctx, cfg.Ledger)
	if err != nil {
		spinner.Fail(err.Error())
		os.Exit(1)
	}
	defer client.Close()
	spinner.Success("Connected")

	reconciler := lobby.NewReconciler(client,
		lobby.WithLogger(log.Logger),
		lobby.WithWindowSize(cfg.Lobby.WindowSize),
		lobby.WithLookupConcurrency(cfg.Lobby.LookupConcurrency),
	)

	watchdog := lobby.NewWatchdog(client, reconciler,
		lobby.WithTurnTimeout(cfg.Lobby.TurnTimeout),
		lobby.WithWatchdogLogger(log.Logger),
	)

	componentCfg := lobby.ComponentConfig{
		WatchdogInterval: cfg.Lobby.WatchdogInterval,
		RefreshInterval:  cfg.Lobby.RefreshInterval,
		Logger:           log.Logger,
	}
	if componentCfg.RefreshInterval == 0 {
		componentCfg.RefreshInterval = -1
	}

	var stream *eventstream.Client
	if cfg.Events.Enabled {
		stream = eventstream.NewClient(client,
			eventstream.WithLogger(log.Logger),
			eventstream.WithInitialReconnectDelay(cfg.Events.ReconnectDelay),
		)
		componentCfg.Events = stream
	}

	changed := make(chan struct{}, 1)
	reconciler.OnChange(func(lobby.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	component := lobby.NewComponent(reconciler, watchdog, componentCfg)
	if err := component.Start(ctx); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	if stream != nil {
		if err := stream.Start(); err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
	}

	area, err := pterm.DefaultArea.WithFullscreen().Start(render(reconciler, time.Now()))
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	// Redraw at least once a second so the turn clock keeps moving.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-changed:
		case <-ticker.C:
		}
		area.Update(render(reconciler, time.Now()))
	}

	_ = area.Stop()
	component.Stop()
	if stream != nil {
		_ = stream.Stop()
	}
	pterm.Info.Println("Bye")
}

func render(r *lobby.Reconciler, now time.Time) string {
	return renderView(r.Session(), r.OpenGames(), r.Loading(), r.Err(), now)
}

func renderView(session lobby.Session, games []ledger.Game, loading bool, errMsg string, now time.Time) string {
	account := "not connected"
	if session.Connected() {
		account = session.Account.Hex()
	}
	username := session.Username
	if username == "" {
		username = pterm.Gray("(unregistered)")
	}
	active := pterm.Gray("none")
	if session.ActiveGameID != 0 {
		active = pterm.LightCyan(fmt.Sprintf("#%d", session.ActiveGameID))
	}
	frozen := ""
	if session.Frozen {
		frozen = "  " + pterm.LightRed("FROZEN")
	}

	info := pterm.Sprintfln("Account: %s", account) +
		pterm.Sprintfln("User:    %s%s", username, frozen) +
		pterm.Sprintfln("Balance: %s ETH", ledger.FormatEther(session.Balance)) +
		pterm.Sprintf("Game:    %s", active)
	if errMsg != "" {
		info += "\n" + pterm.LightRed("Error:   "+errMsg)
	}
	box := pterm.DefaultBox.WithTitle(pterm.LightYellow("|SESSION|")).WithTitleTopCenter().Sprint(info)

	data := pterm.TableData{{"ID", "Creator", "Stake (ETH)", ""}}
	for _, g := range games {
		note := ""
		switch {
		case session.IsCreator(g):
			note = pterm.LightBlue("yours")
		case session.CanJoin(g):
			note = pterm.LightGreen("joinable")
		default:
			note = pterm.Gray("stake too high")
		}
		data = append(data, []string{
			fmt.Sprintf("%d", g.ID),
			shortAddress(g.Creator.Hex()),
			ledger.FormatEther(g.Stake),
			note,
		})
	}

	title := fmt.Sprintf("Open games (%d)", len(games))
	if loading {
		title += " " + pterm.Gray("refreshing...")
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		table = err.Error()
	}
	if len(games) == 0 {
		table = pterm.Gray("No open games")
	}

	return box + "\n\n" + pterm.DefaultSection.Sprint(title) + table + "\n\n" +
		pterm.Gray(now.Format("15:04:05"))
}

func shortAddress(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:6] + "…" + hex[len(hex)-4:]
}
