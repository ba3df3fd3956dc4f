package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justinabrahms/gomokuvault/internal/eventstream"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/rs/zerolog"
)

const (
	DefaultWatchdogInterval = 1500 * time.Millisecond
	DefaultRefreshInterval  = 15 * time.Second
)

// EventSource delivers contract events by name. *eventstream.Client
// implements it.
type EventSource interface {
	On(name ledger.EventName, handler eventstream.Handler)
	RemoveAllListeners(name ledger.EventName)
}

// ComponentConfig wires a Component. Zero intervals fall back to defaults,
// except RefreshInterval where a negative value disables polling.
type ComponentConfig struct {
	Events           EventSource
	WatchdogInterval time.Duration
	RefreshInterval  time.Duration
	Logger           zerolog.Logger
}

// Component ties the reconciler and watchdog to the lifetime of one
// connected session: it performs the initial load, refreshes on contract
// events and timers, and tears all of that down on Stop.
type Component struct {
	reconciler *Reconciler
	watchdog   *Watchdog
	events     EventSource
	logger     zerolog.Logger

	watchdogInterval time.Duration
	refreshInterval  time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewComponent(r *Reconciler, w *Watchdog, cfg ComponentConfig) *Component {
	c := &Component{
		reconciler:       r,
		watchdog:         w,
		events:           cfg.Events,
		logger:           cfg.Logger,
		watchdogInterval: cfg.WatchdogInterval,
		refreshInterval:  cfg.RefreshInterval,
	}
	if c.watchdogInterval <= 0 {
		c.watchdogInterval = DefaultWatchdogInterval
	}
	if c.refreshInterval == 0 {
		c.refreshInterval = DefaultRefreshInterval
	}
	return c
}

// Start loads the initial state and begins reacting to events and timers.
// A component runs once; it cannot be restarted after Stop.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("lobby component already started")
	}
	c.started = true

	// Ledger calls outlive Stop; the closed reconciler discards their results.
	work := context.WithoutCancel(ctx)
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() { _ = c.reconciler.RefreshSession(work) }()
	go func() { _ = c.reconciler.RefreshOpenGames(work) }()

	if c.events != nil {
		for _, name := range ledger.EventNames {
			c.events.On(name, c.handlerFor(work))
		}
	}

	go c.loop(loopCtx, work)

	c.logger.Info().
		Str("watchdogInterval", c.watchdogInterval.String()).
		Str("refreshInterval", c.refreshInterval.String()).
		Msg("Lobby started")
	return nil
}

// Stop removes event listeners, stops timers and closes the reconciler.
func (c *Component) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.stopped {
		return
	}
	c.stopped = true

	if c.events != nil {
		for _, name := range ledger.EventNames {
			c.events.RemoveAllListeners(name)
		}
	}
	c.cancel()
	<-c.done
	c.reconciler.Close()

	c.logger.Info().Msg("Lobby stopped")
}

func (c *Component) handlerFor(work context.Context) eventstream.Handler {
	return func(ev ledger.Event) {
		c.logger.Debug().Str("event", string(ev.Name)).Uint64("gameID", ev.GameID).Msg("Refreshing on event")
		if ev.Name == ledger.EventMoveMade {
			_ = c.reconciler.RefreshSession(work)
			return
		}
		_ = c.reconciler.RefreshSession(work)
		_ = c.reconciler.RefreshOpenGames(work)
	}
}

func (c *Component) loop(ctx, work context.Context) {
	defer close(c.done)

	watchdog := time.NewTicker(c.watchdogInterval)
	defer watchdog.Stop()

	var refresh <-chan time.Time
	if c.refreshInterval > 0 {
		t := time.NewTicker(c.refreshInterval)
		defer t.Stop()
		refresh = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.C:
			go c.watchdog.Tick(work)
		case <-refresh:
			go func() { _ = c.reconciler.Refresh(work) }()
		}
	}
}
