package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func withLevel(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(LevelOff)
	level.Store(int32(lvl))
	SetOutput(&buf)
	t.Cleanup(func() { Init(LevelOff) })
	return &buf
}

func TestLevelGating(t *testing.T) {
	buf := withLevel(t, LevelInfo)

	Info("calibrated at %s", "min")
	Live("should not appear")
	Verbose("should not appear either")

	out := buf.String()
	if !strings.Contains(out, "calibrated at min") {
		t.Errorf("info line missing from output: %q", out)
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("higher level lines leaked at LevelInfo: %q", out)
	}
}

func TestMoveAndError(t *testing.T) {
	buf := withLevel(t, LevelLive)

	Move("pitch", 250*time.Millisecond, "up")
	Error(errors.New("link down"))

	out := buf.String()
	for _, want := range []string{"axis=pitch", "direction=up", "link down"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestOffIsSilent(t *testing.T) {
	Init(LevelOff)
	if IsEnabled(LevelInfo) {
		t.Fatal("LevelOff should disable info")
	}
}

func TestSummary(t *testing.T) {
	buf := withLevel(t, LevelInfo)

	Summary("Patrol done: 6 points, 2 pass(es)")

	if !strings.Contains(buf.String(), "Patrol done: 6 points, 2 pass(es)") {
		t.Errorf("summary missing from output: %q", buf.String())
	}
}
