package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWindowSize is how many of the most recent game ids are scanned
	// for open games.
	DefaultWindowSize = 80

	sessionFallback   = "Failed to fetch game state"
	openGamesFallback = "Failed to load open games"
)

// Reconciler owns the session and open-games snapshots. Both refresh
// operations are idempotent and may overlap; the last completed read wins.
type Reconciler struct {
	ledger      Ledger
	logger      zerolog.Logger
	windowSize  int
	concurrency int

	mu        sync.RWMutex
	session   Session
	openGames []ledger.Game
	errMsg    string
	closed    bool
	listeners []listener

	// loaded is set after the first good open-games read; gamesErr marks
	// errMsg as coming from a failed first read.
	loaded   bool
	gamesErr bool

	loading atomic.Int32
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithWindowSize sets how many recent game ids RefreshOpenGames scans.
func WithWindowSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.windowSize = n
		}
	}
}

// WithLookupConcurrency bounds parallel game lookups; 0 means unbounded.
func WithLookupConcurrency(n int) Option {
	return func(r *Reconciler) {
		r.concurrency = n
	}
}

func NewReconciler(l Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:     l,
		logger:     zerolog.Nop(),
		windowSize: DefaultWindowSize,
		openGames:  []ledger.Game{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers fn to be called after a part of the state is replaced.
// fn runs on the refreshing goroutine and must not block.
func (r *Reconciler) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Session returns the current session snapshot.
func (r *Reconciler) Session() Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

// OpenGames returns the current open games, newest first.
func (r *Reconciler) OpenGames() []ledger.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]ledger.Game, len(r.openGames))
	copy(games, r.openGames)
	return games
}

// Err returns the message of the last failed session read, or of a failed
// first open-games load, or "" once a later read succeeded.
func (r *Reconciler) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errMsg
}

// Loading reports whether an open-games refresh is running.
func (r *Reconciler) Loading() bool {
	return r.loading.Load() > 0
}

// Close discards the results of refreshes that finish afterwards and drops
// all listeners.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.listeners = nil
}

// Refresh re-reads both the session and the open games concurrently.
func (r *Reconciler) Refresh(ctx context.Context) error {
	var wg sync.WaitGroup
	var sessionErr, gamesErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sessionErr = r.RefreshSession(ctx)
	}()
	go func() {
		defer wg.Done()
		gamesErr = r.RefreshOpenGames(ctx)
	}()
	wg.Wait()
	return errors.Join(sessionErr, gamesErr)
}

// RefreshSession reads the account, its vault record and its active game.
// On failure the previous session is kept and the error message is stored.
func (r *Reconciler) RefreshSession(ctx context.Context) error {
	next, err := r.readSession(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to refresh session")
		if r.setError(ledger.Reason(err, sessionFallback)) {
			r.notify(ChangeError)
		}
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.session = next
	hadErr := r.errMsg != ""
	r.errMsg = ""
	r.gamesErr = false
	r.mu.Unlock()

	r.notify(ChangeSession)
	if hadErr {
		r.notify(ChangeError)
	}
	return nil
}

func (r *Reconciler) readSession(ctx context.Context) (Session, error) {
	account, err := r.ledger.Account(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read account: %w", err)
	}

	info, err := r.ledger.UserInfo(ctx)
	if err != nil {
		return Session{}, err
	}

	gameID, err := r.ledger.PlayerCurrentGame(ctx, account)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Account:      account,
		Username:     info.Username,
		Balance:      info.Balance,
		Frozen:       info.Frozen,
		ActiveGameID: gameID,
	}, nil
}

func (r *Reconciler) setError(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.errMsg == msg {
		return false
	}
	r.errMsg = msg
	r.gamesErr = false
	return true
}

func (r *Reconciler) setGamesError(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.loaded || r.errMsg == msg {
		return false
	}
	r.errMsg = msg
	r.gamesErr = true
	return true
}

// RefreshOpenGames scans the most recent window of game ids and replaces the
// open games list with those still waiting for an opponent. Lookups that
// fail are left out of the list.
func (r *Reconciler) RefreshOpenGames(ctx context.Context) error {
	r.beginLoading()
	defer r.endLoading()

	counter, err := r.ledger.GameCounter(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to refresh open games")
		// Later failures keep the last good list quietly.
		if r.setGamesError(ledger.Reason(err, openGamesFallback)) {
			r.notify(ChangeError)
		}
		return err
	}

	ids := windowIDs(counter, r.windowSize)
	results := make([]*ledger.Game, len(ids))

	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			game, err := r.ledger.GameDetails(ctx, id)
			if err != nil {
				r.logger.Debug().Err(err).Uint64("gameID", id).Msg("Skipping game that failed to load")
				return nil
			}
			results[i] = &game
			return nil
		})
	}
	_ = g.Wait()

	open := make([]ledger.Game, 0, len(ids))
	for _, game := range results {
		if game != nil && game.IsOpen() {
			open = append(open, *game)
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.openGames = open
	r.loaded = true
	cleared := r.gamesErr
	if cleared {
		r.errMsg = ""
		r.gamesErr = false
	}
	r.mu.Unlock()

	r.logger.Debug().Uint64("counter", counter).Int("open", len(open)).Msg("Open games refreshed")
	r.notify(ChangeOpenGames)
	if cleared {
		r.notify(ChangeError)
	}
	return nil
}

// windowIDs returns counter, counter-1, ... down to the oldest id inside the
// window, never below 1.
func windowIDs(counter uint64, window int) []uint64 {
	if counter == 0 || window <= 0 {
		return nil
	}
	start := uint64(1)
	if counter > uint64(window) {
		start = counter - uint64(window) + 1
	}
	ids := make([]uint64, 0, counter-start+1)
	for id := counter; id >= start; id-- {
		ids = append(ids, id)
	}
	return ids
}

func (r *Reconciler) beginLoading() {
	if r.loading.Add(1) == 1 {
		r.notify(ChangeLoading)
	}
}

func (r *Reconciler) endLoading() {
	if r.loading.Add(-1) == 0 {
		r.notify(ChangeLoading)
	}
}

func (r *Reconciler) notify(change Change) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	listeners := make([]listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}
