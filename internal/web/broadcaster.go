package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/TurretGo/internal/logic/aim"
)

// Event kinds.
const (
	KindLog    = "log"
	KindStatus = "status"
	KindJob    = "job"
)

// StatusEvent is one message pushed to SSE and websocket clients.
type StatusEvent struct {
	Time  string      `json:"t"`
	Kind  string      `json:"k"`
	Level string      `json:"l,omitempty"`
	Msg   string      `json:"msg,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// StatusBroadcaster distributes events to every subscribed stream client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup function.
// The caller must call cleanup when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends evt to all clients. Slow clients miss events rather than
// blocking the publisher.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Broadcast publishes a log line.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// BroadcastMsg publishes an info log line.
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastSnapshot publishes the controller state.
func (b *StatusBroadcaster) BroadcastSnapshot(s aim.Snapshot) {
	b.Publish(StatusEvent{Kind: KindStatus, Data: s})
}

// BroadcastWriter adapts the broadcaster to io.Writer so the debug logger
// can be teed to stream clients. Each non-blank write is one log event.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(levelOf(msg), msg)
	}
	return len(p), nil
}

// levelOf picks the level out of a console log line ("... WRN ...").
func levelOf(line string) string {
	for _, f := range strings.Fields(line) {
		switch f {
		case "WRN":
			return "warn"
		case "ERR", "FTL", "PNC":
			return "error"
		case "DBG", "TRC":
			return "debug"
		case "INF":
			return "info"
		}
	}
	return "info"
}
