package lobby

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/ledger/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	me    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	rival = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	third = common.HexToAddress("0x0000000000000000000000000000000000000c4a")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func openGame(id uint64) ledger.Game {
	return ledger.Game{ID: id, Creator: rival, Status: ledger.StatusLobby, Stake: ether(1)}
}

func gameIDs(games []ledger.Game) []uint64 {
	ids := make([]uint64, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	return ids
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) record(c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) all() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change(nil), l.changes...)
}

func TestRefreshOpenGames_ListsNewestFirst(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 5; id++ {
		fake.PutGame(openGame(id))
	}
	r := NewReconciler(fake)

	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, []uint64{5, 4, 3, 2, 1}, gameIDs(r.OpenGames()))
}

func TestRefreshOpenGames_SkipsGamesWithOpponent(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 5; id++ {
		fake.PutGame(openGame(id))
	}
	taken := openGame(3)
	taken.Opponent = third
	fake.PutGame(taken)

	r := NewReconciler(fake)
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, []uint64{5, 4, 2, 1}, gameIDs(r.OpenGames()))
}

func TestRefreshOpenGames_FiltersByStatus(t *testing.T) {
	fake := ledgertest.New(me)
	fake.PutGame(openGame(1))
	fake.PutGame(ledger.Game{ID: 2, Creator: rival, Opponent: third, Status: ledger.StatusInProgress})
	fake.PutGame(ledger.Game{ID: 3, Creator: rival, Status: ledger.StatusFinished})
	fake.PutGame(openGame(4))

	r := NewReconciler(fake)
	require.NoError(t, r.RefreshOpenGames(context.Background()))

	games := r.OpenGames()
	assert.Equal(t, []uint64{4, 1}, gameIDs(games))
	for _, g := range games {
		assert.Equal(t, ledger.StatusLobby, g.Status)
		assert.False(t, g.HasOpponent())
	}
}

func TestRefreshOpenGames_ScansOnlyTheWindow(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 100; id++ {
		fake.PutGame(openGame(id))
	}

	r := NewReconciler(fake, WithLookupConcurrency(8))
	require.NoError(t, r.RefreshOpenGames(context.Background()))

	ids := gameIDs(r.OpenGames())
	require.Len(t, ids, DefaultWindowSize)
	assert.Equal(t, uint64(100), ids[0])
	assert.Equal(t, uint64(21), ids[len(ids)-1])
	assert.Equal(t, DefaultWindowSize, fake.Calls("getGameDetails"))
}

func TestRefreshOpenGames_CustomWindow(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 10; id++ {
		fake.PutGame(openGame(id))
	}

	r := NewReconciler(fake, WithWindowSize(3))
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, []uint64{10, 9, 8}, gameIDs(r.OpenGames()))
}

func TestRefreshOpenGames_DropsFailedLookups(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 5; id++ {
		fake.PutGame(openGame(id))
	}
	fake.FailGame(4, errors.New("header not found"))

	r := NewReconciler(fake)
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, []uint64{5, 3, 2, 1}, gameIDs(r.OpenGames()))
	assert.Empty(t, r.Err())
}

func TestRefreshOpenGames_EmptyLedger(t *testing.T) {
	r := NewReconciler(ledgertest.New(me))
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Empty(t, r.OpenGames())
	assert.NotNil(t, r.OpenGames())
}

func TestRefreshOpenGames_CounterFailureKeepsPreviousList(t *testing.T) {
	fake := ledgertest.New(me)
	fake.PutGame(openGame(1))
	fake.PutGame(openGame(2))

	r := NewReconciler(fake)
	require.NoError(t, r.RefreshOpenGames(context.Background()))

	fake.FailCounter(errors.New("connection refused"))
	assert.Error(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, []uint64{2, 1}, gameIDs(r.OpenGames()))
	assert.Empty(t, r.Err(), "open-games failures are not surfaced to the player")
	assert.False(t, r.Loading())
}

func TestRefreshOpenGames_FirstLoadFailureSetsError(t *testing.T) {
	fake := ledgertest.New(me)
	fake.PutGame(openGame(1))
	fake.FailCounter(errors.New("dial tcp: connection refused"))

	r := NewReconciler(fake)
	log := &changeLog{}
	r.OnChange(log.record)

	assert.Error(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, "dial tcp: connection refused", r.Err())
	assert.Empty(t, r.OpenGames())

	fake.FailCounter(nil)
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Empty(t, r.Err())
	assert.Equal(t, []uint64{1}, gameIDs(r.OpenGames()))

	assert.Equal(t, []Change{
		ChangeLoading, ChangeError, ChangeLoading,
		ChangeLoading, ChangeOpenGames, ChangeError, ChangeLoading,
	}, log.all())
}

func TestRefreshOpenGames_SuccessKeepsSessionError(t *testing.T) {
	fake := ledgertest.New(me)
	fake.FailUserInfo(errors.New("execution reverted: Vault paused"))

	r := NewReconciler(fake)
	assert.Error(t, r.RefreshSession(context.Background()))
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, "Vault paused", r.Err())
}

func TestRefreshOpenGames_IsIdempotent(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 5; id++ {
		fake.PutGame(openGame(id))
	}
	r := NewReconciler(fake)

	require.NoError(t, r.RefreshOpenGames(context.Background()))
	first := r.OpenGames()
	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, first, r.OpenGames())
}

func TestRefreshOpenGames_OverlappingRefreshesConverge(t *testing.T) {
	fake := ledgertest.New(me)
	for id := uint64(1); id <= 20; id++ {
		fake.PutGame(openGame(id))
	}
	r := NewReconciler(fake)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RefreshOpenGames(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, r.OpenGames(), 20)
	assert.False(t, r.Loading())
}

func TestRefreshOpenGames_NotifiesLoadingAroundRefresh(t *testing.T) {
	fake := ledgertest.New(me)
	fake.PutGame(openGame(1))
	r := NewReconciler(fake)

	var log changeLog
	var sawLoading bool
	r.OnChange(func(c Change) {
		if c == ChangeLoading && r.Loading() {
			sawLoading = true
		}
		log.record(c)
	})

	require.NoError(t, r.RefreshOpenGames(context.Background()))
	assert.Equal(t, []Change{ChangeLoading, ChangeOpenGames, ChangeLoading}, log.all())
	assert.True(t, sawLoading)
	assert.False(t, r.Loading())
}

func TestRefreshSession_ReadsAccountVaultAndActiveGame(t *testing.T) {
	fake := ledgertest.New(me)
	fake.SetUser(me, ledger.UserInfo{Username: "alice", Balance: ether(3)})
	fake.SetCurrentGame(me, 7)
	r := NewReconciler(fake)

	var log changeLog
	r.OnChange(log.record)

	require.NoError(t, r.RefreshSession(context.Background()))

	s := r.Session()
	assert.Equal(t, me, s.Account)
	assert.Equal(t, "alice", s.Username)
	assert.Equal(t, 0, ether(3).Cmp(s.Balance))
	assert.Equal(t, uint64(7), s.ActiveGameID)
	assert.Equal(t, []Change{ChangeSession}, log.all())
}

func TestRefreshSession_FailureKeepsSessionAndSetsError(t *testing.T) {
	fake := ledgertest.New(me)
	fake.SetUser(me, ledger.UserInfo{Username: "alice", Balance: ether(3)})
	fake.SetCurrentGame(me, 7)
	r := NewReconciler(fake)
	require.NoError(t, r.RefreshSession(context.Background()))

	var log changeLog
	r.OnChange(log.record)

	fake.FailCurrentGame(errors.New("execution reverted: Vault paused"))
	assert.Error(t, r.RefreshSession(context.Background()))
	assert.Equal(t, "Vault paused", r.Err())
	assert.Equal(t, uint64(7), r.Session().ActiveGameID)
	assert.Equal(t, "alice", r.Session().Username)

	fake.FailCurrentGame(nil)
	fake.SetCurrentGame(me, 0)
	require.NoError(t, r.RefreshSession(context.Background()))
	assert.Empty(t, r.Err())
	assert.Equal(t, uint64(0), r.Session().ActiveGameID)

	assert.Equal(t, []Change{ChangeError, ChangeSession, ChangeError}, log.all())
}

func TestRefresh_RunsBothReads(t *testing.T) {
	fake := ledgertest.New(me)
	fake.PutGame(openGame(1))
	fake.SetCurrentGame(me, 1)
	r := NewReconciler(fake)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, uint64(1), r.Session().ActiveGameID)
	assert.Equal(t, []uint64{1}, gameIDs(r.OpenGames()))
}

func TestClose_DiscardsLaterResults(t *testing.T) {
	fake := ledgertest.New(me)
	fake.PutGame(openGame(1))
	r := NewReconciler(fake)

	var log changeLog
	r.OnChange(log.record)
	r.Close()

	require.NoError(t, r.RefreshOpenGames(context.Background()))
	require.NoError(t, r.RefreshSession(context.Background()))
	assert.Empty(t, r.OpenGames())
	assert.False(t, r.Session().Connected())
	assert.Empty(t, log.all())
}

func TestWindowIDs(t *testing.T) {
	tests := []struct {
		name    string
		counter uint64
		window  int
		want    []uint64
	}{
		{"empty", 0, 80, nil},
		{"smaller than window", 3, 80, []uint64{3, 2, 1}},
		{"exactly window", 3, 3, []uint64{3, 2, 1}},
		{"larger than window", 5, 2, []uint64{5, 4}},
		{"no window", 5, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowIDs(tt.counter, tt.window))
		})
	}
}

func TestSessionHelpers(t *testing.T) {
	game := ledger.Game{ID: 1, Creator: me, Status: ledger.StatusLobby, Stake: ether(2)}

	var none Session
	assert.False(t, none.CanJoin(game))
	assert.False(t, none.IsCreator(game))

	s := Session{Account: me, Balance: ether(1)}
	assert.True(t, s.IsCreator(game))
	assert.False(t, s.CanJoin(game))

	s.Balance = ether(2)
	assert.True(t, s.CanJoin(game))

	s = Session{Account: rival}
	assert.False(t, s.IsCreator(game))
	assert.True(t, s.CanJoin(game), "unknown balance does not block joining")
}
