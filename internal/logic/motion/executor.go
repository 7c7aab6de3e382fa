package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/clock"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
	"github.com/cjeanneret/TurretGo/internal/metrics"
)

const (
	// DefaultDuration is used by Up/Down/Left/Right when no duration is given.
	DefaultDuration = 500 * time.Millisecond

	// SliceTolerance is the accepted timer jitter per interleave slice.
	SliceTolerance = 10 * time.Millisecond
	// SettleTolerance is the accepted timer jitter on the calibration settle wait.
	SettleTolerance = 50 * time.Millisecond
)

// ErrEstop is returned by a motion that was preempted by Estop.
var ErrEstop = errors.New("motion: emergency stop")

// Seconds converts a float number of seconds to a duration, rounded to the nanosecond.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Options configures an Executor. Zero values are valid.
type Options struct {
	Clock clock.Clock // clock.Real when nil
	// FirePulse is how long Fire is held before an automatic Stop.
	// Zero sends Fire alone and leaves the pulse to the launcher.
	FirePulse time.Duration
	Metrics   *metrics.Recorder
}

// Executor sends primitive commands to one launcher.
// At most one motion runs at a time; others queue in Run. Estop preempts.
type Executor struct {
	tx        transport.Sender
	clock     clock.Clock
	firePulse time.Duration
	metrics   *metrics.Recorder

	slot chan struct{} // held by the motion in flight
	txMu sync.Mutex    // one frame on the wire at a time

	mu     sync.Mutex
	last   command.Code
	cancel context.CancelCauseFunc
}

// NewExecutor assumes the launcher is stopped.
func NewExecutor(tx transport.Sender, opts Options) *Executor {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Executor{
		tx:        opts.Metrics.Instrument(tx),
		clock:     clk,
		firePulse: opts.FirePulse,
		metrics:   opts.Metrics,
		slot:      make(chan struct{}, 1),
		last:      command.Stop,
	}
}

// Clock returns the clock timed motions run on.
func (e *Executor) Clock() clock.Clock { return e.clock }

// Last returns the last code successfully transmitted.
func (e *Executor) Last() command.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// State returns what the launcher is believed to be doing.
func (e *Executor) State() command.State {
	return command.StateOf(e.Last())
}

// Busy reports whether a motion is in flight.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Run executes fn as a single motion. It waits for the motion in flight to
// finish, then calls fn with a context that Estop cancels.
func (e *Executor) Run(ctx context.Context, fn func(ctx context.Context, m *Motion) error) error {
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.slot }()

	mctx, cancel := context.WithCancelCause(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel(nil)
	}()

	return fn(mctx, &Motion{e: e})
}

// Estop cancels the motion in flight, if any, and sends Stop immediately.
func (e *Executor) Estop() error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel(ErrEstop)
	}
	debug.Info("Emergency stop")
	return e.transmit(command.Stop, false)
}

// Power sends the power/connect frame.
func (e *Executor) Power(on bool) error {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	return transport.Send(e.tx, command.PowerFrame(on))
}

// transmit puts one move frame on the wire. When it fails, a single Stop is
// attempted so the launcher is not left driving; the send error is returned.
func (e *Executor) transmit(code command.Code, calibration bool) error {
	if err := command.Validate(code, calibration); err != nil {
		return err
	}

	e.txMu.Lock()
	err := transport.Send(e.tx, command.MoveFrame(code))
	if err == nil {
		e.setLast(code)
		e.txMu.Unlock()
		return nil
	}
	debug.Error(err)
	if code != command.Stop {
		if serr := transport.Send(e.tx, command.MoveFrame(command.Stop)); serr != nil {
			debug.Error(fmt.Errorf("safety stop: %w", serr))
		} else {
			e.setLast(command.Stop)
		}
	}
	e.txMu.Unlock()
	return err
}

func (e *Executor) setLast(code command.Code) {
	e.mu.Lock()
	e.last = code
	e.mu.Unlock()
}

// Send runs one primitive as its own motion. See Motion.Send.
func (e *Executor) Send(ctx context.Context, code command.Code, d time.Duration) error {
	return e.Run(ctx, func(ctx context.Context, m *Motion) error {
		return m.Send(ctx, code, d)
	})
}

// Timed runs one primitive as its own motion. See Motion.Timed.
func (e *Executor) Timed(ctx context.Context, code command.Code, d time.Duration) (time.Duration, error) {
	var elapsed time.Duration
	err := e.Run(ctx, func(ctx context.Context, m *Motion) error {
		var err error
		elapsed, err = m.Timed(ctx, code, d)
		return err
	})
	return elapsed, err
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultDuration
	}
	return d
}

// Up drives up for d (DefaultDuration when zero), then stops.
func (e *Executor) Up(ctx context.Context, d time.Duration) error {
	return e.Send(ctx, command.Up, orDefault(d))
}

// Down drives down for d (DefaultDuration when zero), then stops.
func (e *Executor) Down(ctx context.Context, d time.Duration) error {
	return e.Send(ctx, command.Down, orDefault(d))
}

// Left drives left for d (DefaultDuration when zero), then stops.
func (e *Executor) Left(ctx context.Context, d time.Duration) error {
	return e.Send(ctx, command.Left, orDefault(d))
}

// Right drives right for d (DefaultDuration when zero), then stops.
func (e *Executor) Right(ctx context.Context, d time.Duration) error {
	return e.Send(ctx, command.Right, orDefault(d))
}

// Stop sends Stop once the motion in flight has finished. Use Estop to preempt.
func (e *Executor) Stop(ctx context.Context) error {
	return e.Send(ctx, command.Stop, 0)
}

// Fire sends Fire, followed by Stop after the configured fire pulse if any.
func (e *Executor) Fire(ctx context.Context) error {
	return e.Run(ctx, func(ctx context.Context, m *Motion) error {
		return m.Fire(ctx)
	})
}

// Motion is the handle a running motion uses to talk to the launcher.
// It is only valid inside the Run callback that received it.
type Motion struct {
	e *Executor
}

// Send transmits code. When d > 0 and code is not Stop, it then waits d and
// transmits Stop as a separate frame. The Stop is sent even if the wait was
// cancelled; the cancellation cause is returned.
func (m *Motion) Send(ctx context.Context, code command.Code, d time.Duration) error {
	_, err := m.Timed(ctx, code, d)
	return err
}

// Timed is Send, also reporting how long the launcher was driven.
func (m *Motion) Timed(ctx context.Context, code command.Code, d time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, context.Cause(ctx)
	}
	if err := m.e.transmit(code, false); err != nil {
		return 0, err
	}
	if d <= 0 || code == command.Stop {
		return 0, nil
	}

	clk := m.e.clock
	start := clk.Now()
	sleepErr := clk.Sleep(ctx, d)
	elapsed := clk.Now().Sub(start)

	if err := m.e.transmit(command.Stop, false); err != nil {
		return elapsed, err
	}
	m.e.metrics.Motion(context.WithoutCancel(ctx), code.String(), elapsed)
	if sleepErr != nil {
		return elapsed, context.Cause(ctx)
	}
	return elapsed, nil
}

// Composite transmits a calibration composite (one bit per axis). No auto-stop.
func (m *Motion) Composite(ctx context.Context, code command.Code) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	if !code.IsComposite() {
		return fmt.Errorf("composite: %s: %w", code, command.ErrInvalidCode)
	}
	return m.e.transmit(code, true)
}

// Stop transmits Stop without waiting.
func (m *Motion) Stop() error {
	return m.e.transmit(command.Stop, false)
}

// Fire transmits Fire and, when a fire pulse is configured, Stop after it.
func (m *Motion) Fire(ctx context.Context) error {
	if m.e.firePulse > 0 {
		return m.Send(ctx, command.Fire, m.e.firePulse)
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	return m.e.transmit(command.Fire, false)
}

// Sleep waits on the executor clock, returning the cancellation cause if interrupted.
func (m *Motion) Sleep(ctx context.Context, d time.Duration) error {
	if err := m.e.clock.Sleep(ctx, d); err != nil {
		return context.Cause(ctx)
	}
	return nil
}

// Clock returns the executor clock.
func (m *Motion) Clock() clock.Clock { return m.e.clock }
