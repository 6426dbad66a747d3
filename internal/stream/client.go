// Package stream maintains the display's long-lived push channel to the
// backend. One resilience core drives either transport strategy: connect,
// consume events, and on any failure back off and reconnect. Transport
// errors never escape this package; they only surface as state transitions.
package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"marquee/internal/stream/metrics"
	"marquee/internal/stream/sse"
)

// State is the stream client's connection state. Terminal only when the
// caller closes the client.
type State string

const (
	StateClosed       State = "closed"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Options configure a Client. Callbacks are invoked from the client's single
// run goroutine, so event delivery is strictly in arrival order and state
// notifications fire exactly once per transition.
type Options struct {
	OnEvent       func(eventType, data string)
	OnStateChange func(State)
	Logger        *slog.Logger
	Metrics       *metrics.Metrics

	// backoff overrides reconnect delays in tests.
	backoff func(attempt int) time.Duration
}

// Client is a resilient event stream consumer over a Transport strategy.
// At most one physical connection is open at a time; starting a new attempt
// first aborts any previous one.
type Client struct {
	transport Transport
	opts      Options

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New constructs a stream client in the closed state.
func New(transport Transport, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.backoff == nil {
		opts.backoff = reconnectDelay
	}
	return &Client{transport: transport, opts: opts, state: StateClosed}
}

// Start begins connecting. Calling Start while a previous run is active
// aborts that run first, so duplicate event delivery is impossible. Start
// after Close is a no-op.
func (c *Client) Start(parent context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev := c.cancel
	c.mu.Unlock()

	if prev != nil {
		prev()
		c.wg.Wait()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Close aborts any in-flight connection attempt, cancels pending reconnect
// timers, and guarantees no further callbacks after it returns. Idempotent:
// only the first call emits the closed transition.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	alreadyClosed := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()

	c.opts.Metrics.SetConnected(false)
	if !alreadyClosed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(StateClosed)
	}
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) run(ctx context.Context) {
	attempt := 0
	for {
		if !c.transition(ctx, StateConnecting) {
			return
		}

		body, err := c.transport.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.opts.Logger.WarnContext(ctx, "stream connect failed", "attempt", attempt, "error", err)
			if !c.waitBackoff(ctx, &attempt) {
				return
			}
			continue
		}

		attempt = 0
		c.opts.Metrics.SetConnected(true)
		if !c.transition(ctx, StateConnected) {
			body.Close()
			return
		}

		err = c.consume(ctx, body)
		body.Close()
		c.opts.Metrics.SetConnected(false)
		if ctx.Err() != nil {
			return
		}
		c.opts.Logger.WarnContext(ctx, "stream interrupted", "error", err)
		if !c.waitBackoff(ctx, &attempt) {
			return
		}
	}
}

// waitBackoff transitions to reconnecting and sleeps the computed delay.
// Returns false when the context died while waiting.
func (c *Client) waitBackoff(ctx context.Context, attempt *int) bool {
	if !c.transition(ctx, StateReconnecting) {
		return false
	}
	c.opts.Metrics.ObserveReconnect()
	delay := c.opts.backoff(*attempt)
	*attempt++

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// consume reads the stream until error or EOF, dispatching parsed events.
// A premature clean EOF is still a transport failure: the channel is meant
// to stay open forever.
func (c *Client) consume(ctx context.Context, body io.Reader) error {
	parser := &sse.Parser{}
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.opts.Metrics.ObserveEvent(ev.Type)
				if c.opts.OnEvent != nil {
					c.opts.OnEvent(ev.Type, ev.Data)
				}
			}
		}
		if err != nil {
			return err
		}
	}
}

// transition moves to next and notifies, unless the context is already dead
// (Close owns the final transition).
func (c *Client) transition(ctx context.Context, next State) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(next)
	}
	return true
}
