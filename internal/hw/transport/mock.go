package transport

import (
	"sync"
	"time"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/clock"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// Mock accepts every frame and only logs it. Used for development without hardware.
type Mock struct{}

func NewMock() *Mock {
	debug.Info("Using MOCK transport (development mode)")
	return &Mock{}
}

func (m *Mock) SendFrame(f command.Frame) error {
	debug.Frame("mock", f)
	return nil
}

func (m *Mock) Close() error {
	debug.Trace("transport Close (mock)")
	return nil
}

// Sent is one frame recorded by a Recorder.
type Sent struct {
	Frame command.Frame
	At    time.Time
}

// Recorder records every frame with the clock time it was sent at.
// A failure hook lets tests simulate a broken link.
type Recorder struct {
	mu     sync.Mutex
	clock  clock.Clock
	sent   []Sent
	fail   func(command.Frame) error
	closed bool
}

// NewRecorder timestamps frames with c (clock.Real when nil).
func NewRecorder(c clock.Clock) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{clock: c}
}

// FailWith makes SendFrame return fn's result; a nil result records the frame.
// Frames that fail are not recorded.
func (r *Recorder) FailWith(fn func(command.Frame) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

func (r *Recorder) SendFrame(f command.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(f); err != nil {
			return err
		}
	}
	r.sent = append(r.sent, Sent{Frame: f, At: r.clock.Now()})
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Sent returns a copy of every recorded frame.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// Codes returns the codes of recorded move frames, in order.
func (r *Recorder) Codes() []command.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []command.Code
	for _, s := range r.sent {
		if s.Frame.IsMove() {
			out = append(out, s.Frame.Code())
		}
	}
	return out
}

// Count returns how many recorded move frames carried code c.
func (r *Recorder) Count(c command.Code) int {
	n := 0
	for _, got := range r.Codes() {
		if got == c {
			n++
		}
	}
	return n
}

// Reset forgets recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
