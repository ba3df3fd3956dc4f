package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GomokuABI is the subset of the Gomoku contract interface used by the lobby.
const GomokuABI = `[
	{"type":"function","name":"gameCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getGameDetails","stateMutability":"view","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[
		{"name":"players","type":"address[2]"},
		{"name":"turn","type":"address"},
		{"name":"status","type":"uint8"},
		{"name":"stake","type":"uint256"},
		{"name":"lastMoveTimestamp","type":"uint256"},
		{"name":"winner","type":"address"}
	]},
	{"type":"function","name":"playerCurrentGame","stateMutability":"view","inputs":[{"name":"player","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"createGame","stateMutability":"nonpayable","inputs":[{"name":"stake","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"joinGame","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelGame","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"makeMove","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"},{"name":"x","type":"uint8"},{"name":"y","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"claimWinByTimeout","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"GameCreated","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"stake","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"GameStarted","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"player1","type":"address","indexed":true},
		{"name":"player2","type":"address","indexed":true}
	]},
	{"type":"event","name":"MoveMade","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true},
		{"name":"x","type":"uint8","indexed":false},
		{"name":"y","type":"uint8","indexed":false}
	]},
	{"type":"event","name":"GameEnded","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"winner","type":"address","indexed":true},
		{"name":"loser","type":"address","indexed":true}
	]}
]`

// VaultABI is the subset of the UserVault contract interface used by the lobby.
const VaultABI = `[
	{"type":"function","name":"getUserInfo","stateMutability":"view","inputs":[],"outputs":[
		{"name":"username","type":"string"},
		{"name":"balance","type":"uint256"},
		{"name":"frozen","type":"bool"}
	]},
	{"type":"function","name":"registerUser","stateMutability":"nonpayable","inputs":[{"name":"username","type":"string"},{"name":"password","type":"string"}],"outputs":[]},
	{"type":"function","name":"login","stateMutability":"nonpayable","inputs":[{"name":"password","type":"string"}],"outputs":[]},
	{"type":"function","name":"logout","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var (
	gomokuABI = mustParseABI(GomokuABI)
	vaultABI  = mustParseABI(VaultABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("ledger: invalid contract ABI: " + err.Error())
	}
	return parsed
}
