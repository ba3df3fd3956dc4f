package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/auth"
	"github.com/justinabrahms/gomokuvault/internal/config"
	"github.com/justinabrahms/gomokuvault/internal/eventstream"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/lobby"
	"github.com/justinabrahms/gomokuvault/internal/vault"
	"github.com/justinabrahms/gomokuvault/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line flags
	var showHelp bool
	flag.BoolVar(&showHelp, "help", false, "Show help information")
	flag.BoolVar(&showHelp, "h", false, "Show help information")
	flag.Parse()

	if showHelp {
		showHelpMessage()
		return
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Development)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := ledger.Dial(ctx, cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ledger")
	}
	defer client.Close()

	log.Info().Str("account", accountLabel(ctx, client)).Str("rpc", cfg.Ledger.RPCURL).Msg("Connected to ledger")

	reconciler := lobby.NewReconciler(client,
		lobby.WithLogger(log.Logger.With().Str("component", "reconciler").Logger()),
		lobby.WithWindowSize(cfg.Lobby.WindowSize),
		lobby.WithLookupConcurrency(cfg.Lobby.LookupConcurrency),
	)
	watchdog := lobby.NewWatchdog(client, reconciler,
		lobby.WithTurnTimeout(cfg.Lobby.TurnTimeout),
		lobby.WithWatchdogLogger(log.Logger.With().Str("component", "watchdog").Logger()),
	)
	actions := lobby.NewActions(client, reconciler, log.Logger.With().Str("component", "actions").Logger())
	vaultSvc := vault.New(client,
		vault.WithLogger(log.Logger.With().Str("component", "vault").Logger()),
		vault.WithAfterWrite(reconciler.RefreshSession),
	)

	componentCfg := lobby.ComponentConfig{
		WatchdogInterval: cfg.Lobby.WatchdogInterval,
		RefreshInterval:  refreshInterval(cfg.Lobby.RefreshInterval),
		Logger:           log.Logger.With().Str("component", "lobby").Logger(),
	}

	var stream *eventstream.Client
	if cfg.Events.Enabled {
		stream = eventstream.NewClient(client,
			eventstream.WithLogger(log.Logger.With().Str("component", "events").Logger()),
			eventstream.WithInitialReconnectDelay(cfg.Events.ReconnectDelay),
		)
		componentCfg.Events = stream
	}

	var issuer *auth.Issuer
	if cfg.Server.AuthSecret != "" {
		issuer = auth.NewIssuer(cfg.Server.AuthSecret, cfg.Server.TokenTTL)
	} else {
		log.Warn().Msg("server.auth_secret not set, write endpoints are unauthenticated")
	}

	service := web.NewService(reconciler, actions, vaultSvc, client, issuer)
	hub := web.NewHub()
	go hub.Run(ctx)
	service.PublishChanges(hub)

	component := lobby.NewComponent(reconciler, watchdog, componentCfg)
	if err := component.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start lobby")
	}
	if stream != nil {
		if err := stream.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start event stream")
		}
	}

	router := service.Router(hub)
	router.Use(web.RequestLogger)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.CORS(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // writes wait for the transaction to be mined
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	component.Stop()
	if stream != nil {
		_ = stream.Stop()
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

type accountSource interface {
	Account(ctx context.Context) (common.Address, error)
}

// accountLabel returns the signing account for the startup log line.
func accountLabel(ctx context.Context, src accountSource) string {
	account, err := src.Account(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read signing account")
		return "unknown"
	}
	return account.Hex()
}

// refreshInterval maps the config's "0 disables" onto the component's
// negative sentinel.
func refreshInterval(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

func setupLogging(dev config.DevelopmentConfig) {
	if dev.Debug {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(dev.LogLevel)
	if err != nil || dev.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func showHelpMessage() {
	fmt.Println(`Gomoku Vault Lobby Daemon

DESCRIPTION:
    Keeps a local view of the Gomoku lobby in step with the Gomoku and
    UserVault contracts. Re-reads state on contract events and timers,
    claims wins when the opponent's turn clock runs out, and serves a
    JSON and WebSocket API for the browser page.

USAGE:
    lobbyd [OPTIONS]

OPTIONS:
    -h, --help    Show this help message

CONFIGURATION:
    Configured via config.yaml in the current directory or ./config.
    Every key can be overridden with GOMOKU_<SECTION>_<KEY>, for example
    GOMOKU_LEDGER_PRIVATE_KEY.

    Example config.yaml:
        server:
          host: localhost
          port: 8080
          auth_secret: "change-me"     # enables bearer tokens on writes
          token_ttl: 12h

        ledger:
          rpc_url: ws://localhost:8546
          gomoku_address: "0x..."
          vault_address: "0x..."
          private_key: "..."           # see keygen
          chain_id: 0                  # 0 asks the node

        lobby:
          window_size: 80
          turn_timeout: 90s
          watchdog_interval: 1500ms
          refresh_interval: 15s        # 0 disables polling

        events:
          enabled: true
          reconnect_delay: 1s

        development:
          debug: true
          log_level: debug

API ENDPOINTS:
    GET  /api/health                 - Service health check
    GET  /api/session                - Account, vault balance, active game
    GET  /api/games/open             - Open games, newest first
    GET  /api/games/{id}             - A single game record
    POST /api/refresh                - Re-read session and open games
    POST /api/games                  - Create a game {"stake": "0.1"}
    POST /api/games/{id}/join        - Join an open game
    POST /api/games/{id}/cancel      - Cancel your open game
    POST /api/games/{id}/moves       - Place a stone {"x": 7, "y": 7}
    POST /api/vault/register         - Register a vault account
    POST /api/vault/login            - Log in, returns a token when auth is on
    POST /api/vault/logout           - Log out
    POST /api/vault/withdraw         - Withdraw {"amount": "0.5"}
    GET  /api/vault/user             - Vault record
    GET  /ws                         - Push of lobby changes

EXAMPLES:
    # Start with default configuration
    lobbyd

    # Create a game via API
    curl -X POST http://localhost:8080/api/games \
      -H "Content-Type: application/json" \
      -d '{"stake": "0.1"}'

SEE ALSO:
    lobbywatch(1), keygen(1), config.yaml(5)`)
}
