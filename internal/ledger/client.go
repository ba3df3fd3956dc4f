package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/justinabrahms/gomokuvault/internal/config"
)

// Client talks to the Gomoku and UserVault contracts over JSON-RPC and signs
// transactions with the configured account key.
type Client struct {
	eth        *ethclient.Client
	gomoku     *bind.BoundContract
	vault      *bind.BoundContract
	gomokuAddr common.Address
	auth       *bind.TransactOpts
	account    common.Address

	// serializes nonce assignment between concurrent submissions
	txMu sync.Mutex
}

// Dial connects to the RPC endpoint and prepares bindings for both contracts.
// A websocket URL is required for event subscriptions.
func Dial(ctx context.Context, cfg config.LedgerConfig) (*Client, error) {
	if !common.IsHexAddress(cfg.GomokuAddress) {
		return nil, fmt.Errorf("invalid gomoku contract address %q", cfg.GomokuAddress)
	}
	if !common.IsHexAddress(cfg.VaultAddress) {
		return nil, fmt.Errorf("invalid vault contract address %q", cfg.VaultAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load account key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	return newClient(eth, key, chainID, common.HexToAddress(cfg.GomokuAddress), common.HexToAddress(cfg.VaultAddress))
}

func newClient(eth *ethclient.Client, key *ecdsa.PrivateKey, chainID *big.Int, gomokuAddr, vaultAddr common.Address) (*Client, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	return &Client{
		eth:        eth,
		gomoku:     bind.NewBoundContract(gomokuAddr, gomokuABI, eth, eth, eth),
		vault:      bind.NewBoundContract(vaultAddr, vaultABI, eth, eth, eth),
		gomokuAddr: gomokuAddr,
		auth:       auth,
		account:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Account returns the address transactions are signed with.
func (c *Client) Account(ctx context.Context) (common.Address, error) {
	return c.account, nil
}

func (c *Client) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, From: c.account}
}

// GameCounter returns the id of the most recently created game.
func (c *Client) GameCounter(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.gomoku.Call(c.callOpts(ctx), &out, "gameCounter"); err != nil {
		return 0, fmt.Errorf("failed to read game counter: %w", err)
	}
	return decodeUint(out)
}

// GameDetails reads a single game record.
func (c *Client) GameDetails(ctx context.Context, id uint64) (Game, error) {
	var out []interface{}
	if err := c.gomoku.Call(c.callOpts(ctx), &out, "getGameDetails", new(big.Int).SetUint64(id)); err != nil {
		return Game{}, fmt.Errorf("failed to read game %d: %w", id, err)
	}
	return decodeGame(id, out)
}

// PlayerCurrentGame returns the active game id of player, 0 if none.
func (c *Client) PlayerCurrentGame(ctx context.Context, player common.Address) (uint64, error) {
	var out []interface{}
	if err := c.gomoku.Call(c.callOpts(ctx), &out, "playerCurrentGame", player); err != nil {
		return 0, fmt.Errorf("failed to read current game of %s: %w", player.Hex(), err)
	}
	return decodeUint(out)
}

// UserInfo reads the vault record of the signing account.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	var out []interface{}
	if err := c.vault.Call(c.callOpts(ctx), &out, "getUserInfo"); err != nil {
		return UserInfo{}, fmt.Errorf("failed to read user info: %w", err)
	}
	return decodeUserInfo(out)
}

func (c *Client) CreateGame(ctx context.Context, stake *big.Int) (PendingTx, error) {
	return c.transact(ctx, c.gomoku, "createGame", stake)
}

func (c *Client) JoinGame(ctx context.Context, id uint64) (PendingTx, error) {
	return c.transact(ctx, c.gomoku, "joinGame", new(big.Int).SetUint64(id))
}

func (c *Client) CancelGame(ctx context.Context, id uint64) (PendingTx, error) {
	return c.transact(ctx, c.gomoku, "cancelGame", new(big.Int).SetUint64(id))
}

func (c *Client) MakeMove(ctx context.Context, id uint64, x, y uint8) (PendingTx, error) {
	return c.transact(ctx, c.gomoku, "makeMove", new(big.Int).SetUint64(id), x, y)
}

func (c *Client) ClaimWinByTimeout(ctx context.Context, id uint64) (PendingTx, error) {
	return c.transact(ctx, c.gomoku, "claimWinByTimeout", new(big.Int).SetUint64(id))
}

func (c *Client) RegisterUser(ctx context.Context, username, password string) (PendingTx, error) {
	return c.transact(ctx, c.vault, "registerUser", username, password)
}

func (c *Client) Login(ctx context.Context, password string) (PendingTx, error) {
	return c.transact(ctx, c.vault, "login", password)
}

func (c *Client) Logout(ctx context.Context) (PendingTx, error) {
	return c.transact(ctx, c.vault, "logout")
}

func (c *Client) Withdraw(ctx context.Context, amount *big.Int) (PendingTx, error) {
	return c.transact(ctx, c.vault, "withdraw", amount)
}

func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (PendingTx, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	opts := *c.auth
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", method, err)
	}

	return &pendingTx{tx: tx, backend: c.eth, method: method}, nil
}

type pendingTx struct {
	tx      *types.Transaction
	backend bind.DeployBackend
	method  string
}

func (p *pendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

func (p *pendingTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", p.method, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return &RevertError{Method: p.method, TxHash: p.tx.Hash()}
	}
	return nil
}

func decodeUint(out []interface{}) (uint64, error) {
	if len(out) != 1 {
		return 0, fmt.Errorf("expected 1 return value, got %d", len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected return type %T", out[0])
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("value %s does not fit in uint64", n)
	}
	return n.Uint64(), nil
}

func decodeGame(id uint64, out []interface{}) (Game, error) {
	if len(out) != 6 {
		return Game{}, fmt.Errorf("expected 6 return values for game %d, got %d", id, len(out))
	}

	players, ok := out[0].([2]common.Address)
	if !ok {
		return Game{}, fmt.Errorf("unexpected players type %T", out[0])
	}
	turn, ok := out[1].(common.Address)
	if !ok {
		return Game{}, fmt.Errorf("unexpected turn type %T", out[1])
	}
	status, ok := out[2].(uint8)
	if !ok {
		return Game{}, fmt.Errorf("unexpected status type %T", out[2])
	}
	stake, ok := out[3].(*big.Int)
	if !ok {
		return Game{}, fmt.Errorf("unexpected stake type %T", out[3])
	}
	lastMove, ok := out[4].(*big.Int)
	if !ok {
		return Game{}, fmt.Errorf("unexpected timestamp type %T", out[4])
	}
	winner, ok := out[5].(common.Address)
	if !ok {
		return Game{}, fmt.Errorf("unexpected winner type %T", out[5])
	}

	return Game{
		ID:         id,
		Creator:    players[0],
		Opponent:   players[1],
		Status:     GameStatus(status),
		Stake:      stake,
		Turn:       turn,
		LastMoveAt: lastMove.Uint64(),
		Winner:     winner,
	}, nil
}

func decodeUserInfo(out []interface{}) (UserInfo, error) {
	if len(out) != 3 {
		return UserInfo{}, fmt.Errorf("expected 3 return values, got %d", len(out))
	}
	username, ok := out[0].(string)
	if !ok {
		return UserInfo{}, fmt.Errorf("unexpected username type %T", out[0])
	}
	balance, ok := out[1].(*big.Int)
	if !ok {
		return UserInfo{}, fmt.Errorf("unexpected balance type %T", out[1])
	}
	frozen, ok := out[2].(bool)
	if !ok {
		return UserInfo{}, fmt.Errorf("unexpected frozen type %T", out[2])
	}
	return UserInfo{Username: username, Balance: balance, Frozen: frozen}, nil
}
