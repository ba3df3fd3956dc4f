package lobby

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/rs/zerolog"
)

// DefaultTurnTimeout is how long the opponent may sit on their turn before
// the game can be claimed.
const DefaultTurnTimeout = 90 * time.Second

// Watchdog claims a win when the opponent has let the turn clock run out.
// At most one claim is in flight at a time.
type Watchdog struct {
	ledger     Ledger
	reconciler *Reconciler
	logger     zerolog.Logger
	timeout    time.Duration
	now        func() time.Time

	inFlight atomic.Bool
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

func WithTurnTimeout(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WatchdogOption {
	return func(w *Watchdog) {
		w.now = now
	}
}

func WithWatchdogLogger(logger zerolog.Logger) WatchdogOption {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// NewWatchdog returns a watchdog for the active game held by r.
func NewWatchdog(l Ledger, r *Reconciler, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		ledger:     l,
		reconciler: r,
		logger:     zerolog.Nop(),
		timeout:    DefaultTurnTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// InFlight reports whether a claim is being submitted or awaited.
func (w *Watchdog) InFlight() bool {
	return w.inFlight.Load()
}

// Tick runs one check and reports whether a claim was submitted. Read
// failures and rejected claims are logged and otherwise ignored; the next
// tick simply checks again.
func (w *Watchdog) Tick(ctx context.Context) bool {
	if w.inFlight.Load() {
		return false
	}

	gameID := w.reconciler.Session().ActiveGameID
	if gameID == 0 {
		return false
	}
	if !w.timedOut(ctx, gameID) {
		return false
	}

	if !w.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer w.inFlight.Store(false)

	// A claim may have been mined between the read above and taking the
	// guard, so check again while holding it.
	if !w.timedOut(ctx, gameID) {
		return false
	}

	w.claim(ctx, gameID)
	return true
}

// timedOut reads the game and reports whether the opponent has overrun
// their turn.
func (w *Watchdog) timedOut(ctx context.Context, gameID uint64) bool {
	game, err := w.ledger.GameDetails(ctx, gameID)
	if err != nil {
		w.logger.Debug().Err(err).Uint64("gameID", gameID).Msg("Watchdog failed to read game")
		return false
	}
	if game.Status != ledger.StatusInProgress {
		return false
	}

	me, err := w.ledger.Account(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Watchdog failed to read account")
		return false
	}
	if game.Turn == me || game.LastMoveAt == 0 {
		return false
	}

	// Whole seconds, matching block timestamps.
	return w.now().Unix() > int64(game.LastMoveAt)+int64(w.timeout/time.Second)
}

func (w *Watchdog) claim(ctx context.Context, gameID uint64) {
	log := w.logger.With().Uint64("gameID", gameID).Logger()
	log.Info().Msg("Opponent timed out, claiming win")

	tx, err := w.ledger.ClaimWinByTimeout(ctx, gameID)
	if err != nil {
		log.Debug().Err(err).Msg("Timeout claim not submitted")
		return
	}
	if err := tx.Wait(ctx); err != nil {
		log.Debug().Err(err).Str("tx", tx.Hash().Hex()).Msg("Timeout claim failed")
		return
	}

	log.Info().Str("tx", tx.Hash().Hex()).Msg("Won by timeout")
	_ = w.reconciler.RefreshSession(ctx)
	_ = w.reconciler.RefreshOpenGames(ctx)
}
