// Package transport delivers command frames to the launcher.
// Frames are fire-and-forget: no acknowledgement is read back.
package transport

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// Sender is the sendFrame capability consumed by the motion layer.
type Sender interface {
	SendFrame(f command.Frame) error
	Close() error
}

// Error reports a frame the link could not transmit.
type Error struct {
	Frame command.Frame
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: send %s: %v", e.Frame, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err is (or wraps) a transport Error.
func IsError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Send transmits f and wraps any failure in *Error.
func Send(s Sender, f command.Frame) error {
	err := s.SendFrame(f)
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Frame: f, Err: err}
}

// Kinds accepted by Open.
const (
	KindHID    = "hid"
	KindSerial = "serial"
	KindRelay  = "gpio"
	KindMock   = "mock"
)

// Config selects and parameterizes a transport.
type Config struct {
	Kind       string
	HIDRawPath string // e.g. /dev/hidraw0
	SerialPort string // e.g. /dev/ttyUSB0
	SerialBaud int
	Relay      RelayPins
	MockGPIO   bool // relay transport against the mock GPIO driver
}

// Open builds the transport named by cfg.Kind.
func Open(cfg Config) (Sender, error) {
	switch cfg.Kind {
	case KindHID:
		h, err := OpenHID(cfg.HIDRawPath)
		if err != nil {
			return nil, err
		}
		return h, nil
	case KindSerial:
		s, err := OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindRelay:
		r, err := OpenRelay(cfg.Relay, cfg.MockGPIO)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindMock, "":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Kind)
	}
}
