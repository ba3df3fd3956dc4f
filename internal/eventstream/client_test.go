package eventstream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/ledger/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var me = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (r *recorder) handle(ev ledger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestClient_SubscribesAndDispatchesByName(t *testing.T) {
	fake := ledgertest.New(me)
	client := NewClient(fake)

	var created, moves recorder
	client.On(ledger.EventGameCreated, created.handle)
	client.On(ledger.EventMoveMade, moves.handle)

	require.NoError(t, client.Start())
	defer client.Stop()

	require.Eventually(t, client.IsConnected, time.Second, 5*time.Millisecond)

	fake.Emit(ledger.Event{Name: ledger.EventGameCreated, GameID: 1})
	fake.Emit(ledger.Event{Name: ledger.EventMoveMade, GameID: 1})
	fake.Emit(ledger.Event{Name: ledger.EventMoveMade, GameID: 1})
	fake.Emit(ledger.Event{Name: ledger.EventGameEnded, GameID: 1})

	assert.Eventually(t, func() bool { return created.count() == 1 && moves.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestClient_RemoveAllListenersStopsDelivery(t *testing.T) {
	fake := ledgertest.New(me)
	client := NewClient(fake)

	var started recorder
	client.On(ledger.EventGameStarted, started.handle)
	client.On(ledger.EventGameStarted, started.handle)
	assert.Equal(t, 2, client.ListenerCount(ledger.EventGameStarted))

	client.RemoveAllListeners(ledger.EventGameStarted)
	assert.Equal(t, 0, client.ListenerCount(ledger.EventGameStarted))

	require.NoError(t, client.Start())
	defer client.Stop()
	require.Eventually(t, client.IsConnected, time.Second, 5*time.Millisecond)

	fake.Emit(ledger.Event{Name: ledger.EventGameStarted, GameID: 3})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, started.count())
}

func TestClient_ResubscribesAfterDrop(t *testing.T) {
	fake := ledgertest.New(me)
	client := NewClient(fake, WithInitialReconnectDelay(10*time.Millisecond))

	var ended recorder
	client.On(ledger.EventGameEnded, ended.handle)

	require.NoError(t, client.Start())
	defer client.Stop()
	require.Eventually(t, func() bool { return fake.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	fake.DropSubscriptions(errors.New("connection reset"))

	require.Eventually(t, func() bool {
		return fake.Subscribers() == 1 && fake.Calls("subscribe") == 2
	}, time.Second, 5*time.Millisecond)

	fake.Emit(ledger.Event{Name: ledger.EventGameEnded, GameID: 2})
	assert.Eventually(t, func() bool { return ended.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClient_RetriesFailedSubscribe(t *testing.T) {
	fake := ledgertest.New(me)
	fake.FailSubmit("subscribe", errors.New("notifications not supported"))
	client := NewClient(fake, WithInitialReconnectDelay(5*time.Millisecond))

	require.NoError(t, client.Start())
	defer client.Stop()

	require.Eventually(t, func() bool { return fake.Calls("subscribe") >= 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, client.IsConnected())

	fake.FailSubmit("subscribe", nil)
	assert.Eventually(t, client.IsConnected, 2*time.Second, 5*time.Millisecond)
}

func TestClient_StopUnsubscribes(t *testing.T) {
	fake := ledgertest.New(me)
	client := NewClient(fake)

	require.NoError(t, client.Start())
	require.Eventually(t, client.IsConnected, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Stop())
	assert.False(t, client.IsConnected())
	assert.Equal(t, 0, fake.Subscribers())
}

func TestClient_StartTwiceFails(t *testing.T) {
	client := NewClient(ledgertest.New(me))
	require.NoError(t, client.Start())
	defer client.Stop()
	assert.Error(t, client.Start())
}
