package transport

import (
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// DefaultBaud is used when no baud rate is configured.
const DefaultBaud = 115200

// Serial writes raw 8-byte frames to a serial bridge in front of the launcher.
type Serial struct {
	mu   sync.Mutex
	name string
	port io.WriteCloser
}

// OpenSerial opens the port and sends the power-on frame.
func OpenSerial(name string, baud int) (*Serial, error) {
	if name == "" {
		return nil, fmt.Errorf("serial: port name is required")
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	s := newSerial(name, port)
	if err := s.SendFrame(command.PowerFrame(true)); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial: power on: %w", err)
	}
	debug.Info("Serial transport connected on %s (%d baud)", name, baud)
	return s, nil
}

func newSerial(name string, port io.WriteCloser) *Serial {
	return &Serial{name: name, port: port}
}

func (s *Serial) SendFrame(f command.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("serial: %s is closed", s.name)
	}

	debug.Frame("serial", f)
	n, err := s.port.Write(f[:])
	if err != nil {
		return err
	}
	if n != command.FrameSize {
		return io.ErrShortWrite
	}
	return nil
}

// Close powers the launcher off and closes the port.
func (s *Serial) Close() error {
	if err := s.SendFrame(command.PowerFrame(false)); err != nil {
		debug.Error(fmt.Errorf("serial: power off: %w", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
