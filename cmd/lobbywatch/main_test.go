package main

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/lobby"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
)

func TestRenderView(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	me := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	rival := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	session := lobby.Session{
		Account:      me,
		Username:     "alice",
		Balance:      oneEther,
		ActiveGameID: 3,
	}
	games := []ledger.Game{
		{ID: 5, Creator: rival, Status: ledger.StatusLobby, Stake: new(big.Int).Mul(oneEther, big.NewInt(2))},
		{ID: 4, Creator: me, Status: ledger.StatusLobby, Stake: oneEther},
		{ID: 2, Creator: rival, Status: ledger.StatusLobby, Stake: oneEther},
	}

	out := renderView(session, games, true, "Failed to fetch game state", time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC))

	assert.Contains(t, out, me.Hex())
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1.0 ETH")
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "Failed to fetch game state")
	assert.Contains(t, out, "Open games (3)")
	assert.Contains(t, out, "refreshing...")
	assert.Contains(t, out, "stake too high")
	assert.Contains(t, out, "yours")
	assert.Contains(t, out, "joinable")
	assert.Contains(t, out, "12:30:00")
}

func TestRenderViewEmpty(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	out := renderView(lobby.Session{}, nil, false, "", time.Now())

	assert.Contains(t, out, "not connected")
	assert.Contains(t, out, "(unregistered)")
	assert.Contains(t, out, "No open games")
	assert.NotContains(t, out, "refreshing")
	assert.NotContains(t, out, "Error:")
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x0000…00a1", shortAddress("0x00000000000000000000000000000000000000a1"))
	assert.Equal(t, "0xabc", shortAddress("0xabc"))
}
