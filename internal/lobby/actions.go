package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/rs/zerolog"
)

// ErrInvalidInput marks an action rejected before anything was submitted.
var ErrInvalidInput = errors.New("invalid input")

// ActionError carries the message shown to the player alongside the cause.
type ActionError struct {
	Op      string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err == nil || errors.Is(e.Err, ErrInvalidInput) {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func invalid(op, msg string) error {
	return &ActionError{Op: op, Message: msg, Err: ErrInvalidInput}
}

func failed(op string, err error, fallback string) error {
	return &ActionError{Op: op, Message: ledger.Reason(err, fallback), Err: err}
}

// Actions submits player moves and re-reads the affected state once each
// write is mined.
type Actions struct {
	ledger     Ledger
	reconciler *Reconciler
	logger     zerolog.Logger
}

func NewActions(l Ledger, r *Reconciler, logger zerolog.Logger) *Actions {
	return &Actions{ledger: l, reconciler: r, logger: logger}
}

// CreateGame opens a game with stake (in ether) and returns its id as
// recorded by the ledger.
func (a *Actions) CreateGame(ctx context.Context, stake string) (uint64, error) {
	const op = "create game"

	wei, err := ledger.ParseEther(stake)
	if err != nil || wei.Sign() <= 0 {
		return 0, invalid(op, "Invalid stake amount")
	}
	if balance := a.reconciler.Session().Balance; balance != nil && balance.Cmp(wei) < 0 {
		return 0, invalid(op, "Insufficient vault balance for stake")
	}

	if err := a.submit(ctx, "createGame", func() (ledger.PendingTx, error) {
		return a.ledger.CreateGame(ctx, wei)
	}); err != nil {
		return 0, failed(op, err, "Create game failed")
	}

	account, err := a.ledger.Account(ctx)
	if err != nil {
		return 0, failed(op, err, "Create game failed")
	}
	gameID, err := a.ledger.PlayerCurrentGame(ctx, account)
	if err != nil {
		return 0, failed(op, err, "Create game failed")
	}

	a.logger.Info().Uint64("gameID", gameID).Str("stake", ledger.FormatEther(wei)).Msg("Game created")
	_ = a.reconciler.RefreshSession(ctx)
	_ = a.reconciler.RefreshOpenGames(ctx)
	return gameID, nil
}

// JoinGame takes the open seat of gameID.
func (a *Actions) JoinGame(ctx context.Context, gameID uint64) error {
	const op = "join game"

	if gameID == 0 {
		return invalid(op, "Invalid game ID")
	}
	if err := a.submit(ctx, "joinGame", func() (ledger.PendingTx, error) {
		return a.ledger.JoinGame(ctx, gameID)
	}); err != nil {
		return failed(op, err, "Join game failed")
	}

	a.logger.Info().Uint64("gameID", gameID).Msg("Joined game")
	_ = a.reconciler.RefreshSession(ctx)
	_ = a.reconciler.RefreshOpenGames(ctx)
	return nil
}

// CancelGame withdraws an open game created by the session account.
func (a *Actions) CancelGame(ctx context.Context, gameID uint64) error {
	const op = "cancel game"

	if gameID == 0 {
		return invalid(op, "Invalid game ID")
	}
	if err := a.submit(ctx, "cancelGame", func() (ledger.PendingTx, error) {
		return a.ledger.CancelGame(ctx, gameID)
	}); err != nil {
		return failed(op, err, "Cancel game failed")
	}

	a.logger.Info().Uint64("gameID", gameID).Msg("Game cancelled")
	_ = a.reconciler.RefreshOpenGames(ctx)
	_ = a.reconciler.RefreshSession(ctx)
	return nil
}

// MakeMove places a stone at (x, y).
func (a *Actions) MakeMove(ctx context.Context, gameID uint64, x, y int) error {
	const op = "make move"

	if gameID == 0 {
		return invalid(op, "Invalid game ID")
	}
	if x < 0 || x >= ledger.BoardSize || y < 0 || y >= ledger.BoardSize {
		return invalid(op, "Invalid move coordinates")
	}
	if err := a.submit(ctx, "makeMove", func() (ledger.PendingTx, error) {
		return a.ledger.MakeMove(ctx, gameID, uint8(x), uint8(y))
	}); err != nil {
		return failed(op, err, "Move failed")
	}

	a.logger.Debug().Uint64("gameID", gameID).Int("x", x).Int("y", y).Msg("Move made")
	_ = a.reconciler.RefreshSession(ctx)
	return nil
}

func (a *Actions) submit(ctx context.Context, method string, send func() (ledger.PendingTx, error)) error {
	tx, err := send()
	if err != nil {
		a.logger.Error().Err(err).Str("method", method).Msg("Transaction not submitted")
		return err
	}
	if err := tx.Wait(ctx); err != nil {
		a.logger.Error().Err(err).Str("method", method).Str("tx", tx.Hash().Hex()).Msg("Transaction failed")
		return err
	}
	return nil
}
