package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GameStatus mirrors the status enum stored by the Gomoku contract.
type GameStatus uint8

const (
	StatusLobby      GameStatus = 0
	StatusInProgress GameStatus = 1
	StatusFinished   GameStatus = 2
)

func (s GameStatus) String() string {
	switch s {
	case StatusLobby:
		return "Lobby"
	case StatusInProgress:
		return "In Progress"
	case StatusFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// BoardSize is the side length of the Gomoku board.
const BoardSize = 15

// Game is a point-in-time read of a game record. It is never patched in
// place; a newer read replaces it.
type Game struct {
	ID         uint64
	Creator    common.Address
	Opponent   common.Address // zero address until someone joins
	Status     GameStatus
	Stake      *big.Int // wei
	Turn       common.Address
	LastMoveAt uint64 // unix seconds, 0 = no move recorded
	Winner     common.Address
}

// HasOpponent reports whether a second player is recorded.
func (g Game) HasOpponent() bool {
	return g.Opponent != (common.Address{})
}

// IsOpen reports whether the game is waiting in the lobby for an opponent.
func (g Game) IsOpen() bool {
	return g.Status == StatusLobby && !g.HasOpponent()
}

// UserInfo is the vault record of the connected account.
type UserInfo struct {
	Username string
	Balance  *big.Int // wei
	Frozen   bool
}

// PendingTx is a submitted transaction that has not necessarily been mined.
type PendingTx interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A reverted receipt is
	// reported as *RevertError.
	Wait(ctx context.Context) error
}

// EventName identifies one of the contract events the lobby reacts to.
type EventName string

const (
	EventGameCreated EventName = "GameCreated"
	EventGameStarted EventName = "GameStarted"
	EventMoveMade    EventName = "MoveMade"
	EventGameEnded   EventName = "GameEnded"
)

// EventNames lists every event the lobby subscribes to.
var EventNames = []EventName{EventGameCreated, EventGameStarted, EventMoveMade, EventGameEnded}

// Event is a decoded contract log. Only the fields relevant to Name are set.
type Event struct {
	Name   EventName
	GameID uint64

	// GameCreated
	Creator common.Address
	Stake   *big.Int

	// GameStarted
	Player1 common.Address
	Player2 common.Address

	// MoveMade
	Player common.Address
	X      uint8
	Y      uint8

	// GameEnded
	Winner common.Address
	Loser  common.Address

	BlockNumber uint64
	TxHash      common.Hash
}

// Subscription is a live event feed. go-ethereum's event.Subscription
// satisfies it.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}
