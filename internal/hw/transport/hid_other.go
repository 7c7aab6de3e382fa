//go:build !linux

package transport

import (
	"errors"

	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

var errHIDUnsupported = errors.New("hid: hidraw transport is only available on linux")

// HID is unavailable outside Linux.
type HID struct{}

func OpenHID(path string) (*HID, error) {
	return nil, errHIDUnsupported
}

func (h *HID) SendFrame(command.Frame) error { return errHIDUnsupported }

func (h *HID) Close() error { return nil }
