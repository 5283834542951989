// Package modbustest provides an in-process Modbus TCP server for tests.
//
// It answers function 0x03 (read holding registers) per unit id and can be
// told to fail whole units or single addresses with Modbus exceptions, which
// is enough to drive the device reader's retry and degraded-read paths over
// a real socket.
package modbustest

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

const (
	mbapHeaderLen = 7

	functionReadHoldingRegs = 0x03

	exceptionIllegalFunction  = 0x01
	exceptionIllegalDataAddr  = 0x02
	exceptionIllegalDataValue = 0x03
	exceptionTargetNoResponse = 0x0B

	maxReadQuantity = 125
)

// Server is a minimal Modbus TCP server.
type Server struct {
	listener  net.Listener
	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
	requests  atomic.Int64

	mu          sync.RWMutex
	registers   map[uint8]map[uint16]uint16
	failedUnits map[uint8]bool
	failedAddrs map[uint8]map[uint16]bool
}

// NewServer starts a server on a random loopback port.
func NewServer() (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener:    l,
		quit:        make(chan struct{}),
		registers:   make(map[uint8]map[uint16]uint16),
		failedUnits: make(map[uint8]bool),
		failedAddrs: make(map[uint8]map[uint16]bool),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listening address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// HostPort returns the listening host and port separately.
func (s *Server) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return host, n
}

// Requests returns how many requests have been answered.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// SetRegisters stores words at consecutive addresses of unit.
func (s *Server) SetRegisters(unit uint8, address uint16, words ...uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs, ok := s.registers[unit]
	if !ok {
		regs = make(map[uint16]uint16)
		s.registers[unit] = regs
	}
	for i, w := range words {
		regs[address+uint16(i)] = w //nolint:gosec // G115: test helper, small counts
	}
}

// FailUnit makes every request to unit fail with "target device failed to respond".
func (s *Server) FailUnit(unit uint8, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedUnits[unit] = fail
}

// FailAddress makes requests to unit starting at address fail with
// "illegal data address".
func (s *Server) FailAddress(unit uint8, address uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs, ok := s.failedAddrs[unit]
	if !ok {
		addrs = make(map[uint16]bool)
		s.failedAddrs[unit] = addrs
	}
	addrs[address] = true
}

// Close stops the server and waits for all connections to finish.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.listener.Close() //nolint:errcheck // shutting down
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	go func() {
		<-s.quit
		conn.Close() //nolint:errcheck // unblock the reader on shutdown
	}()

	header := make([]byte, mbapHeaderLen)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		length := binary.BigEndian.Uint16(header[4:6])
		if length < 2 {
			return
		}
		unit := header[6]
		pdu := make([]byte, int(length)-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		response := s.handlePDU(unit, pdu)
		s.requests.Add(1)

		// Transaction and protocol ids (header[0:4]) are echoed as received.
		binary.BigEndian.PutUint16(header[4:6], uint16(len(response)+1)) //nolint:gosec // G115: small PDU
		if _, err := conn.Write(append(header, response...)); err != nil {
			return
		}
	}
}

func (s *Server) handlePDU(unit uint8, pdu []byte) []byte {
	function := pdu[0]
	if function != functionReadHoldingRegs {
		return exception(function, exceptionIllegalFunction)
	}
	if len(pdu) < 5 {
		return exception(function, exceptionIllegalDataValue)
	}

	start := binary.BigEndian.Uint16(pdu[1:3])
	quantity := binary.BigEndian.Uint16(pdu[3:5])
	if quantity == 0 || quantity > maxReadQuantity {
		return exception(function, exceptionIllegalDataValue)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failedUnits[unit] {
		return exception(function, exceptionTargetNoResponse)
	}
	if s.failedAddrs[unit][start] {
		return exception(function, exceptionIllegalDataAddr)
	}

	regs := s.registers[unit]
	data := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(data[2*i:], regs[start+uint16(i)]) //nolint:gosec // G115: bounded by quantity
	}
	return append([]byte{function, byte(len(data))}, data...)
}

func exception(function, code byte) []byte {
	return []byte{function | 0x80, code}
}
