package inverter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// State is the lifecycle state of a Conn.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn owns the link to the inverter gateway.
//
// Transitions: Disconnected -> Connecting -> Connected on EnsureConnected,
// Connecting -> Disconnected on a failed connect, and any state ->
// Disconnected on Close or an endpoint change in Reconfigure.
type Conn struct {
	mu        sync.Mutex
	dial      Dialer
	timeout   time.Duration
	endpoint  settings.Endpoint
	transport Transport
	state     State
}

// NewConn creates a disconnected Conn for ep.
func NewConn(dial Dialer, ep settings.Endpoint, timeout time.Duration) *Conn {
	return &Conn{
		dial:      dial,
		timeout:   timeout,
		endpoint:  ep,
		transport: dial(ep, timeout),
		state:     Disconnected,
	}
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the current target.
func (c *Conn) Endpoint() settings.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// EnsureConnected connects when disconnected. It is a no-op when the link
// is already up, so callers may invoke it before every read.
func (c *Conn) EnsureConnected(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	t := c.transport
	ep := c.endpoint
	c.mu.Unlock()

	err := t.Connect()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != t {
		// Reconfigured while connecting; the old transport is stale.
		t.Close() //nolint:errcheck // best effort on a replaced transport
		return fmt.Errorf("%w: endpoint changed while connecting to %s", ErrNotConnected, ep)
	}
	if err != nil {
		c.state = Disconnected
		return fmt.Errorf("connecting to %s: %w", ep, err)
	}
	c.state = Connected
	return nil
}

// Reconfigure points the Conn at ep. When the endpoint differs from the
// current one the link is closed and a fresh transport is built; the next
// EnsureConnected dials the new target. It reports whether anything changed.
func (c *Conn) Reconfigure(ep settings.Endpoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ep == c.endpoint {
		return false
	}
	c.transport.Close() //nolint:errcheck // best effort on the old endpoint
	c.endpoint = ep
	c.transport = c.dial(ep, c.timeout)
	c.state = Disconnected
	return true
}

// Close drops the link. The Conn stays usable; EnsureConnected reconnects.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Disconnected
	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.endpoint, err)
	}
	return nil
}

// Read reads holding registers. It requires the Connected state and leaves
// the state unchanged on error; the caller decides whether to Close.
func (c *Conn) Read(deviceID uint8, address, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	t := c.transport
	c.mu.Unlock()

	words, err := t.ReadHoldingRegisters(deviceID, address, quantity)
	if err != nil {
		return nil, err
	}
	if len(words) < int(quantity) {
		return nil, fmt.Errorf("%w: got %d of %d registers", ErrShortResponse, len(words), quantity)
	}
	return words, nil
}
