//go:build linux

package transport

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// HID writes frames as output reports to a Linux hidraw node.
// The launcher uses unnumbered reports, so each write is prefixed with report 0.
type HID struct {
	mu   sync.Mutex
	path string
	fd   int
}

// OpenHID opens the hidraw node and powers the launcher on.
func OpenHID(path string) (*HID, error) {
	if path == "" {
		return nil, fmt.Errorf("hid: hidraw path is required")
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("hid: open %s: %w", path, err)
	}
	h := &HID{path: path, fd: fd}
	if err := h.SendFrame(command.PowerFrame(true)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("hid: power on: %w", err)
	}
	debug.Info("HID transport connected on %s", path)
	return h, nil
}

func (h *HID) SendFrame(f command.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return fmt.Errorf("hid: %s is closed", h.path)
	}

	debug.Frame("hid", f)
	report := make([]byte, 0, command.FrameSize+1)
	report = append(report, 0x00)
	report = append(report, f[:]...)
	n, err := unix.Write(h.fd, report)
	if err != nil {
		return err
	}
	if n != len(report) {
		return io.ErrShortWrite
	}
	return nil
}

// Close powers the launcher off and releases the node.
func (h *HID) Close() error {
	if err := h.SendFrame(command.PowerFrame(false)); err != nil {
		debug.Error(fmt.Errorf("hid: power off: %w", err))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	debug.Info("HID transport on %s disconnected", h.path)
	return err
}
