package modbustest

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/goburrow/modbus"
)

func newClient(t *testing.T, s *Server, unit uint8) modbus.Client {
	t.Helper()

	h := modbus.NewTCPClientHandler(s.Addr())
	h.Timeout = 2 * time.Second
	h.SlaveId = unit
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { h.Close() }) //nolint:errcheck // Test cleanup
	return modbus.NewClient(h)
}

func TestServer_ReadHoldingRegisters(t *testing.T) {
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	defer s.Close()

	s.SetRegisters(1, 70, 1500, 2300, 65, 42)
	client := newClient(t, s, 1)

	raw, err := client.ReadHoldingRegisters(70, 4)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters() error = %v", err)
	}
	want := []uint16{1500, 2300, 65, 42}
	for i, w := range want {
		if got := binary.BigEndian.Uint16(raw[2*i:]); got != w {
			t.Errorf("register %d = %d, want %d", 70+i, got, w)
		}
	}
	if s.Requests() != 1 {
		t.Errorf("Requests() = %d, want 1", s.Requests())
	}
}

func TestServer_Failures(t *testing.T) {
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	defer s.Close()

	s.FailUnit(2, true)
	s.FailAddress(1, 189)

	if _, err := newClient(t, s, 2).ReadHoldingRegisters(70, 4); err == nil {
		t.Error("read from failed unit should error")
	}

	c1 := newClient(t, s, 1)
	if _, err := c1.ReadHoldingRegisters(189, 2); err == nil {
		t.Error("read from failed address should error")
	}
	if _, err := c1.ReadHoldingRegisters(193, 2); err != nil {
		t.Errorf("read from healthy address error = %v", err)
	}

	s.FailUnit(2, false)
	if _, err := newClient(t, s, 2).ReadHoldingRegisters(70, 4); err != nil {
		t.Errorf("read after FailUnit(false) error = %v", err)
	}
}
