package eventstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/rs/zerolog"
)

const (
	// Reconnection parameters
	initialReconnectDelay  = 1 * time.Second
	maxReconnectDelay      = 5 * time.Minute
	reconnectBackoffFactor = 2

	sinkBufferSize = 64
)

var errSubscriptionClosed = errors.New("subscription closed")

// Source opens a live feed of contract events. *ledger.Client implements it.
type Source interface {
	SubscribeEvents(ctx context.Context, sink chan<- ledger.Event) (ledger.Subscription, error)
}

// Handler is called for each delivered event of the name it was registered
// for. Handlers run on their own goroutine; delivery is at-least-once and
// unordered across event names.
type Handler func(event ledger.Event)

// Client keeps a subscription to the game contract alive, resubscribing with
// backoff when it drops, and fans events out to named listeners.
type Client struct {
	source         Source
	logger         zerolog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	initialDelay   time.Duration
	reconnectDelay time.Duration
	done           chan struct{}

	mu        sync.RWMutex
	connected bool
	started   bool
	sub       ledger.Subscription
	handlers  map[ledger.EventName][]Handler
}

// Option configures the client
type Option func(*Client)

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithInitialReconnectDelay sets the initial reconnect delay
func WithInitialReconnectDelay(delay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.initialDelay = delay
		}
	}
}

// NewClient creates a client reading from source. Call Start to connect.
func NewClient(source Source, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		source:       source,
		logger:       zerolog.Nop(),
		ctx:          ctx,
		cancel:       cancel,
		initialDelay: initialReconnectDelay,
		done:         make(chan struct{}),
		handlers:     make(map[ledger.EventName][]Handler),
	}

	for _, opt := range opts {
		opt(client)
	}
	client.reconnectDelay = client.initialDelay

	return client
}

// On registers handler for events called name.
func (c *Client) On(name ledger.EventName, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = append(c.handlers[name], handler)
}

// RemoveAllListeners drops every handler registered for name.
func (c *Client) RemoveAllListeners(name ledger.EventName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, name)
}

// ListenerCount returns how many handlers are registered for name.
func (c *Client) ListenerCount(name ledger.EventName) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers[name])
}

// Start begins listening. It may be called once.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("event stream already started")
	}
	c.started = true
	go c.run()
	return nil
}

// Stop cancels the subscription and waits for the read loop to exit.
// Handlers already running are not interrupted.
func (c *Client) Stop() error {
	c.cancel()

	c.mu.Lock()
	started := c.started
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	c.connected = false
	c.mu.Unlock()

	if started {
		<-c.done
	}
	return nil
}

// IsConnected returns whether the client currently holds a subscription.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		sink := make(chan ledger.Event, sinkBufferSize)
		sub, err := c.connect(sink)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to subscribe to game events")
			c.handleReconnect()
			continue
		}

		if err := c.listen(sink, sub); err != nil {
			c.logger.Error().Err(err).Msg("Game event subscription dropped")
			c.handleReconnect()
			continue
		}
	}
}

func (c *Client) connect(sink chan ledger.Event) (ledger.Subscription, error) {
	c.logger.Info().Msg("Subscribing to game events")

	sub, err := c.source.SubscribeEvents(c.ctx, sink)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		sub.Unsubscribe()
		return nil, c.ctx.Err()
	}
	c.sub = sub
	c.connected = true
	c.reconnectDelay = c.initialDelay
	c.mu.Unlock()

	c.logger.Info().Msg("Subscribed to game events")
	return sub, nil
}

func (c *Client) listen(sink <-chan ledger.Event, sub ledger.Subscription) error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case err, ok := <-sub.Err():
			if c.ctx.Err() != nil {
				return nil
			}
			if !ok || err == nil {
				return errSubscriptionClosed
			}
			return err
		case event := <-sink:
			c.dispatch(event)
		}
	}
}

func (c *Client) dispatch(event ledger.Event) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[event.Name]...)
	c.mu.RUnlock()

	c.logger.Debug().
		Str("event", string(event.Name)).
		Uint64("gameID", event.GameID).
		Int("listeners", len(handlers)).
		Msg("Dispatching game event")

	for _, h := range handlers {
		go h(event)
	}
}

func (c *Client) handleReconnect() {
	c.mu.Lock()
	c.connected = false
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}

	// Get current delay before updating
	delay := c.reconnectDelay

	// Exponential backoff
	c.reconnectDelay = time.Duration(float64(c.reconnectDelay) * reconnectBackoffFactor)
	if c.reconnectDelay > maxReconnectDelay {
		c.reconnectDelay = maxReconnectDelay
	}
	c.mu.Unlock()

	c.logger.Info().Str("delay", delay.String()).Msg("Waiting before resubscribe")

	select {
	case <-time.After(delay):
	case <-c.ctx.Done():
	}
}
