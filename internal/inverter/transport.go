package inverter

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// Transport reads holding registers from devices sharing one link.
type Transport interface {
	Connect() error
	Close() error
	ReadHoldingRegisters(deviceID uint8, address, quantity uint16) ([]uint16, error)
}

// Dialer builds an unconnected Transport for an endpoint.
type Dialer func(ep settings.Endpoint, timeout time.Duration) Transport

// TCPTransport is a Modbus TCP Transport.
// It serialises requests because it mutates SlaveId per request.
type TCPTransport struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// DialTCP is the Dialer for Modbus TCP endpoints.
func DialTCP(ep settings.Endpoint, timeout time.Duration) Transport {
	return NewTCPTransport(ep, timeout)
}

// NewTCPTransport creates an unconnected Modbus TCP transport.
func NewTCPTransport(ep settings.Endpoint, timeout time.Duration) *TCPTransport {
	h := modbus.NewTCPClientHandler(ep.String())
	h.Timeout = timeout
	return &TCPTransport{
		handler: h,
		client:  modbus.NewClient(h),
	}
}

// Connect opens the TCP connection.
func (t *TCPTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler.Connect()
}

// Close closes the TCP connection. Closing an unconnected transport is a no-op.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler.Close()
}

// ReadHoldingRegisters reads quantity big-endian words starting at address.
func (t *TCPTransport) ReadHoldingRegisters(deviceID uint8, address, quantity uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler.SlaveId = deviceID
	raw, err := t.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, err
	}
	return decodeWords(raw, quantity)
}

func decodeWords(raw []byte, quantity uint16) ([]uint16, error) {
	if len(raw) < int(quantity)*2 {
		return nil, fmt.Errorf("%w: got %d bytes for %d registers", ErrShortResponse, len(raw), quantity)
	}
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return words, nil
}
