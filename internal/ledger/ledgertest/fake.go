// Package ledgertest provides an in-memory ledger for tests. It models just
// enough of the Gomoku and UserVault contracts for the lobby to be driven end
// to end without a node.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
)

// Fake is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	account  common.Address
	counter  uint64
	games    map[uint64]ledger.Game
	current  map[common.Address]uint64
	users    map[common.Address]ledger.UserInfo
	passwd   map[common.Address]string
	loggedIn map[common.Address]bool

	// Injected failures.
	counterErr  error
	userInfoErr error
	currentErr  error
	gameErrs    map[uint64]error
	submitErrs  map[string]error
	waitErrs    map[string]error

	// ClaimGate, when set, blocks ClaimWinByTimeout's Wait until it is
	// closed or receives a value.
	ClaimGate chan struct{}

	calls map[string]int
	subs  map[*subscription]struct{}
	nonce uint64
}

// New returns a fake ledger whose signing account is account.
func New(account common.Address) *Fake {
	return &Fake{
		account:    account,
		games:      make(map[uint64]ledger.Game),
		current:    make(map[common.Address]uint64),
		users:      make(map[common.Address]ledger.UserInfo),
		passwd:     make(map[common.Address]string),
		loggedIn:   make(map[common.Address]bool),
		gameErrs:   make(map[uint64]error),
		submitErrs: make(map[string]error),
		waitErrs:   make(map[string]error),
		calls:      make(map[string]int),
		subs:       make(map[*subscription]struct{}),
	}
}

// PutGame stores g and advances the counter to cover its id.
func (f *Fake) PutGame(g ledger.Game) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g.Stake == nil {
		g.Stake = new(big.Int)
	}
	f.games[g.ID] = g
	if g.ID > f.counter {
		f.counter = g.ID
	}
}

// Game returns the stored record of id.
func (f *Fake) Game(id uint64) (ledger.Game, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	return g, ok
}

// SetCounter overrides the game counter.
func (f *Fake) SetCounter(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter = n
}

// SetCurrentGame records the active game of player.
func (f *Fake) SetCurrentGame(player common.Address, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[player] = id
}

// SetUser stores the vault record of player.
func (f *Fake) SetUser(player common.Address, info ledger.UserInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[player] = info
}

// FailGame makes GameDetails(id) return err. A nil err clears the failure.
func (f *Fake) FailGame(id uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.gameErrs, id)
		return
	}
	f.gameErrs[id] = err
}

func (f *Fake) FailCounter(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counterErr = err
}

func (f *Fake) FailUserInfo(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userInfoErr = err
}

func (f *Fake) FailCurrentGame(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentErr = err
}

// FailSubmit makes submission of method (ABI name, e.g. "joinGame") fail.
func (f *Fake) FailSubmit(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.submitErrs, method)
		return
	}
	f.submitErrs[method] = err
}

// FailWait makes the pending transaction of method fail when awaited.
func (f *Fake) FailWait(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.waitErrs, method)
		return
	}
	f.waitErrs[method] = err
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) {
	f.calls[method]++
}

func (f *Fake) Account(ctx context.Context) (common.Address, error) {
	return f.account, nil
}

func (f *Fake) GameCounter(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("gameCounter")
	if f.counterErr != nil {
		return 0, f.counterErr
	}
	return f.counter, nil
}

func (f *Fake) GameDetails(ctx context.Context, id uint64) (ledger.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("getGameDetails")
	if err := f.gameErrs[id]; err != nil {
		return ledger.Game{}, err
	}
	g, ok := f.games[id]
	if !ok {
		return ledger.Game{}, fmt.Errorf("game %d not found", id)
	}
	return g, nil
}

func (f *Fake) PlayerCurrentGame(ctx context.Context, player common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("playerCurrentGame")
	if f.currentErr != nil {
		return 0, f.currentErr
	}
	return f.current[player], nil
}

func (f *Fake) UserInfo(ctx context.Context) (ledger.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("getUserInfo")
	if f.userInfoErr != nil {
		return ledger.UserInfo{}, f.userInfoErr
	}
	info, ok := f.users[f.account]
	if !ok {
		return ledger.UserInfo{Balance: new(big.Int)}, nil
	}
	return info, nil
}

// submit records the call, checks injected failures and applies mutate once
// the transaction is "mined" (on Wait).
func (f *Fake) submit(method string, mutate func() error) (ledger.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(method)
	if err := f.submitErrs[method]; err != nil {
		return nil, err
	}
	f.nonce++
	tx := &pendingTx{
		fake:   f,
		method: method,
		hash:   common.BigToHash(new(big.Int).SetUint64(f.nonce)),
		mutate: mutate,
	}
	if method == "claimWinByTimeout" {
		tx.gate = f.ClaimGate
	}
	return tx, nil
}

func (f *Fake) CreateGame(ctx context.Context, stake *big.Int) (ledger.PendingTx, error) {
	return f.submit("createGame", func() error {
		if f.current[f.account] != 0 {
			return errors.New("execution reverted: Already in a game")
		}
		user := f.users[f.account]
		if user.Balance == nil || user.Balance.Cmp(stake) < 0 {
			return errors.New("execution reverted: Insufficient balance")
		}
		f.counter++
		f.games[f.counter] = ledger.Game{
			ID:      f.counter,
			Creator: f.account,
			Status:  ledger.StatusLobby,
			Stake:   new(big.Int).Set(stake),
		}
		f.current[f.account] = f.counter
		return nil
	})
}

func (f *Fake) JoinGame(ctx context.Context, id uint64) (ledger.PendingTx, error) {
	return f.submit("joinGame", func() error {
		g, ok := f.games[id]
		if !ok || !g.IsOpen() {
			return errors.New("execution reverted: Game not joinable")
		}
		g.Opponent = f.account
		g.Status = ledger.StatusInProgress
		g.Turn = g.Creator
		f.games[id] = g
		f.current[f.account] = id
		return nil
	})
}

func (f *Fake) CancelGame(ctx context.Context, id uint64) (ledger.PendingTx, error) {
	return f.submit("cancelGame", func() error {
		g, ok := f.games[id]
		if !ok || g.Creator != f.account || !g.IsOpen() {
			return errors.New("execution reverted: Cannot cancel")
		}
		g.Status = ledger.StatusFinished
		f.games[id] = g
		delete(f.current, f.account)
		return nil
	})
}

func (f *Fake) MakeMove(ctx context.Context, id uint64, x, y uint8) (ledger.PendingTx, error) {
	return f.submit("makeMove", func() error {
		g, ok := f.games[id]
		if !ok || g.Status != ledger.StatusInProgress || g.Turn != f.account {
			return errors.New("execution reverted: Not your turn")
		}
		if g.Turn == g.Creator {
			g.Turn = g.Opponent
		} else {
			g.Turn = g.Creator
		}
		f.games[id] = g
		return nil
	})
}

func (f *Fake) ClaimWinByTimeout(ctx context.Context, id uint64) (ledger.PendingTx, error) {
	return f.submit("claimWinByTimeout", func() error {
		g, ok := f.games[id]
		if !ok || g.Status != ledger.StatusInProgress {
			return errors.New("execution reverted: Game not in progress")
		}
		g.Status = ledger.StatusFinished
		g.Winner = f.account
		f.games[id] = g
		delete(f.current, g.Creator)
		delete(f.current, g.Opponent)
		return nil
	})
}

func (f *Fake) RegisterUser(ctx context.Context, username, password string) (ledger.PendingTx, error) {
	return f.submit("registerUser", func() error {
		if _, ok := f.passwd[f.account]; ok {
			return errors.New("execution reverted: User already registered")
		}
		f.passwd[f.account] = password
		user := f.users[f.account]
		user.Username = username
		if user.Balance == nil {
			user.Balance = new(big.Int)
		}
		f.users[f.account] = user
		return nil
	})
}

func (f *Fake) Login(ctx context.Context, password string) (ledger.PendingTx, error) {
	return f.submit("login", func() error {
		stored, ok := f.passwd[f.account]
		if !ok || stored != password {
			return errors.New("execution reverted: Invalid credentials")
		}
		f.loggedIn[f.account] = true
		return nil
	})
}

func (f *Fake) Logout(ctx context.Context) (ledger.PendingTx, error) {
	return f.submit("logout", func() error {
		if !f.loggedIn[f.account] {
			return errors.New("execution reverted: Not logged in")
		}
		delete(f.loggedIn, f.account)
		return nil
	})
}

func (f *Fake) Withdraw(ctx context.Context, amount *big.Int) (ledger.PendingTx, error) {
	return f.submit("withdraw", func() error {
		user := f.users[f.account]
		if user.Balance == nil || user.Balance.Cmp(amount) < 0 {
			return errors.New("execution reverted: Insufficient balance")
		}
		user.Balance = new(big.Int).Sub(user.Balance, amount)
		f.users[f.account] = user
		return nil
	})
}

// LoggedIn reports whether the account completed a login.
func (f *Fake) LoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn[f.account]
}

type pendingTx struct {
	fake   *Fake
	method string
	hash   common.Hash
	mutate func() error
	gate   chan struct{}
}

func (p *pendingTx) Hash() common.Hash {
	return p.hash
}

func (p *pendingTx) Wait(ctx context.Context) error {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	if err := p.fake.waitErrs[p.method]; err != nil {
		return err
	}
	return p.mutate()
}

// SubscribeEvents registers sink for events published with Emit.
func (f *Fake) SubscribeEvents(ctx context.Context, sink chan<- ledger.Event) (ledger.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("subscribe")
	if err := f.submitErrs["subscribe"]; err != nil {
		return nil, err
	}
	sub := &subscription{
		fake: f,
		sink: sink,
		quit: make(chan struct{}),
		err:  make(chan error, 1),
	}
	f.subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Emit delivers ev to every live subscription.
func (f *Fake) Emit(ev ledger.Event) {
	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		select {
		case s.sink <- ev:
		case <-s.quit:
		}
	}
}

// DropSubscriptions fails every live subscription with err, as a lost
// connection would.
func (f *Fake) DropSubscriptions(err error) {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[*subscription]struct{})
	f.mu.Unlock()

	for s := range subs {
		s.err <- err
	}
}

type subscription struct {
	fake *Fake
	sink chan<- ledger.Event
	quit chan struct{}
	err  chan error
	once sync.Once
}

func (s *subscription) Err() <-chan error {
	return s.err
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.fake.mu.Lock()
		delete(s.fake.subs, s)
		s.fake.mu.Unlock()
		close(s.quit)
	})
}
