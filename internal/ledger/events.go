package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// logDecoder only unpacks logs, it never talks to a backend.
var logDecoder = bind.NewBoundContract(common.Address{}, gomokuABI, nil, nil, nil)

func eventTopics() []common.Hash {
	topics := make([]common.Hash, 0, len(EventNames))
	for _, name := range EventNames {
		topics = append(topics, gomokuABI.Events[string(name)].ID)
	}
	return topics
}

// SubscribeEvents streams decoded game events into sink until the returned
// subscription is cancelled or the connection drops. Logs that do not decode
// are skipped.
func (c *Client) SubscribeEvents(ctx context.Context, sink chan<- Event) (Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.gomokuAddr},
		Topics:    [][]common.Hash{eventTopics()},
	}

	logs := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to game events: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				ev, err := decodeLog(l)
				if err != nil {
					continue
				}
				select {
				case sink <- ev:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func decodeLog(l types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return Event{}, fmt.Errorf("log without topics")
	}
	abiEvent, err := gomokuABI.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("unknown event: %w", err)
	}

	ev := Event{
		Name:        EventName(abiEvent.Name),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}

	switch ev.Name {
	case EventGameCreated:
		var out struct {
			GameId  *big.Int
			Creator common.Address
			Stake   *big.Int
		}
		if err := logDecoder.UnpackLog(&out, abiEvent.Name, l); err != nil {
			return Event{}, fmt.Errorf("failed to decode %s: %w", abiEvent.Name, err)
		}
		ev.GameID = out.GameId.Uint64()
		ev.Creator = out.Creator
		ev.Stake = out.Stake

	case EventGameStarted:
		var out struct {
			GameId  *big.Int
			Player1 common.Address
			Player2 common.Address
		}
		if err := logDecoder.UnpackLog(&out, abiEvent.Name, l); err != nil {
			return Event{}, fmt.Errorf("failed to decode %s: %w", abiEvent.Name, err)
		}
		ev.GameID = out.GameId.Uint64()
		ev.Player1 = out.Player1
		ev.Player2 = out.Player2

	case EventMoveMade:
		var out struct {
			GameId *big.Int
			Player common.Address
			X      uint8
			Y      uint8
		}
		if err := logDecoder.UnpackLog(&out, abiEvent.Name, l); err != nil {
			return Event{}, fmt.Errorf("failed to decode %s: %w", abiEvent.Name, err)
		}
		ev.GameID = out.GameId.Uint64()
		ev.Player = out.Player
		ev.X = out.X
		ev.Y = out.Y

	case EventGameEnded:
		var out struct {
			GameId *big.Int
			Winner common.Address
			Loser  common.Address
		}
		if err := logDecoder.UnpackLog(&out, abiEvent.Name, l); err != nil {
			return Event{}, fmt.Errorf("failed to decode %s: %w", abiEvent.Name, err)
		}
		ev.GameID = out.GameId.Uint64()
		ev.Winner = out.Winner
		ev.Loser = out.Loser

	default:
		return Event{}, fmt.Errorf("unhandled event %s", abiEvent.Name)
	}

	return ev, nil
}
