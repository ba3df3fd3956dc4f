// Package lobby keeps a local view of the Gomoku lobby in step with the
// ledger. Every trigger (initial load, contract event, manual refresh, timer)
// re-reads the authoritative state; nothing is derived from pending writes.
package lobby

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
)

// Ledger is the contract surface the lobby reads and writes.
type Ledger interface {
	Account(ctx context.Context) (common.Address, error)
	GameCounter(ctx context.Context) (uint64, error)
	GameDetails(ctx context.Context, id uint64) (ledger.Game, error)
	PlayerCurrentGame(ctx context.Context, player common.Address) (uint64, error)
	UserInfo(ctx context.Context) (ledger.UserInfo, error)

	CreateGame(ctx context.Context, stake *big.Int) (ledger.PendingTx, error)
	JoinGame(ctx context.Context, id uint64) (ledger.PendingTx, error)
	CancelGame(ctx context.Context, id uint64) (ledger.PendingTx, error)
	MakeMove(ctx context.Context, id uint64, x, y uint8) (ledger.PendingTx, error)
	ClaimWinByTimeout(ctx context.Context, id uint64) (ledger.PendingTx, error)
}

// Session is the locally held view of the connected account.
type Session struct {
	Account      common.Address
	Username     string
	Balance      *big.Int // wei, nil until the first successful read
	Frozen       bool
	ActiveGameID uint64 // 0 = none
}

// Connected reports whether an account has been read.
func (s Session) Connected() bool {
	return s.Account != (common.Address{})
}

// IsCreator reports whether the session account created g.
func (s Session) IsCreator(g ledger.Game) bool {
	return s.Connected() && g.Creator == s.Account
}

// CanJoin reports whether the vault balance covers the stake of g. An
// unknown balance does not block joining; the contract has the final say.
func (s Session) CanJoin(g ledger.Game) bool {
	if !s.Connected() {
		return false
	}
	if s.Balance == nil || g.Stake == nil {
		return true
	}
	return s.Balance.Cmp(g.Stake) >= 0
}

// Change identifies which part of the reconciler state was replaced.
type Change string

const (
	ChangeSession   Change = "session"
	ChangeOpenGames Change = "open_games"
	ChangeLoading   Change = "loading"
	ChangeError     Change = "error"
)

type listener func(Change)
