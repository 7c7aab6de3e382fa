//go:build linux

package transport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// A regular file stands in for the hidraw node: every report is appended.
func TestHID_ReportsAndPower(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidraw")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	h, err := OpenHID(path)
	if err != nil {
		t.Fatalf("OpenHID: %v", err)
	}
	if err := h.SendFrame(command.MoveFrame(command.Left)); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var want []byte
	for _, f := range []command.Frame{
		command.PowerFrame(true),
		command.MoveFrame(command.Left),
		command.PowerFrame(false),
	} {
		want = append(want, 0x00)
		want = append(want, f.Bytes()...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("reports = % x\nwant      % x", got, want)
	}

	if err := h.SendFrame(command.MoveFrame(command.Stop)); err == nil {
		t.Error("SendFrame after Close should fail")
	}
}

func TestHID_OpenErrors(t *testing.T) {
	if _, err := OpenHID(""); err == nil {
		t.Error("empty path: expected error")
	}
	if _, err := OpenHID(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing node: expected error")
	}
}
