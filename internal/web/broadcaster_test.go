package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cjeanneret/TurretGo/internal/logic/aim"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "hello")

	evt := receive(t, ch)
	if evt.Msg != "hello" {
		t.Errorf("msg = %q, want \"hello\"", evt.Msg)
	}
	if evt.Level != "info" {
		t.Errorf("level = %q, want \"info\"", evt.Level)
	}
	if evt.Kind != KindLog {
		t.Errorf("kind = %q, want %q", evt.Kind, KindLog)
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if n := b.Clients(); n != 2 {
		t.Errorf("Clients() = %d, want 2", n)
	}

	b.Broadcast("info", "multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "multi" {
			t.Errorf("subscriber %d: msg = %q, want \"multi\"", i, evt.Msg)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if n := b.Clients(); n != 0 {
		t.Errorf("Clients() = %d, want 0", n)
	}
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.Broadcast("info", "fill")
	}
	// must not block
	b.Broadcast("info", "overflow")

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != 64 {
		t.Errorf("expected 64 buffered messages, got %d", count)
	}
}

func TestBroadcaster_AfterUnsubscribeBroadcastDoesNotPanic(t *testing.T) {
	b := NewStatusBroadcaster()
	_, unsub := b.Subscribe()
	unsub()

	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_BroadcastMsg(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastMsg("convenience")

	evt := receive(t, ch)
	if evt.Level != "info" {
		t.Errorf("level = %q, want \"info\"", evt.Level)
	}
	if evt.Msg != "convenience" {
		t.Errorf("msg = %q, want \"convenience\"", evt.Msg)
	}
}

func TestBroadcaster_BroadcastSnapshot(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastSnapshot(aim.Snapshot{Name: "t1", Pitch: 12.5, Yaw: -30})

	evt := receive(t, ch)
	if evt.Kind != KindStatus {
		t.Fatalf("kind = %q, want %q", evt.Kind, KindStatus)
	}
	data, ok := evt.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", evt.Data)
	}
	if data["name"] != "t1" || data["pitch"] != 12.5 || data["yaw"] != -30.0 {
		t.Errorf("data = %v", data)
	}
}

func TestBroadcastWriter_Write(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	n, err := w.Write([]byte("  trimmed message  \n"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != len("  trimmed message  \n") {
		t.Errorf("n = %d, want %d", n, len("  trimmed message  \n"))
	}

	if evt := receive(t, ch); evt.Msg != "trimmed message" {
		t.Errorf("msg = %q, want \"trimmed message\"", evt.Msg)
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	w.Write([]byte("   \n"))

	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastWriter_Level(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"10:04:05 INF Turret ready", "info"},
		{"10:04:05 WRN Moving before calibration", "warn"},
		{"10:04:05 ERR transport: send failed", "error"},
		{"10:04:05 DBG frame 02 01 00 00", "debug"},
		{"10:04:05 TRC sleep 50ms", "debug"},
		{"plain text", "info"},
	}
	for _, tt := range tests {
		if got := levelOf(tt.line); got != tt.want {
			t.Errorf("levelOf(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestBroadcaster_EventHasTimestamp(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "timestamped")

	evt := receive(t, ch)
	if _, err := time.Parse(time.RFC3339, evt.Time); err != nil {
		t.Errorf("time %q is not RFC3339: %v", evt.Time, err)
	}
}
