// Package aim tracks the believed absolute orientation of the launcher and
// turns absolute targets into timed moves. The launcher has no position
// feedback: the estimate is grounded only by Calibrate.
package aim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
	"github.com/cjeanneret/TurretGo/internal/logic/motion"
)

// DefaultSettleMargin is added to the slower axis' full travel while calibrating.
const DefaultSettleMargin = 500 * time.Millisecond

// ErrNotCalibrated is returned by absolute moves before the first calibration
// when calibration is required.
var ErrNotCalibrated = errors.New("aim: turret is not calibrated")

// Options configures a Turret. The zero value requires calibration and uses
// DefaultLimits.
type Options struct {
	Name         string
	Limits       Limits
	SettleMargin time.Duration
	// AllowUncalibrated lets absolute moves run from the power-on origin
	// with a warning instead of failing with ErrNotCalibrated.
	AllowUncalibrated bool
}

// CalibrateOptions selects the end-stops and whether to center afterwards.
type CalibrateOptions struct {
	Opposite  bool `json:"opposite"`
	AndCenter bool `json:"and_center"`
}

// Relative reports a relative two-axis move.
type Relative struct {
	Yaw   Move        `json:"yaw"`
	Pitch Move        `json:"pitch"`
	Plan  motion.Plan `json:"-"`
}

// Turret is the absolute position controller for one launcher.
type Turret struct {
	name         string
	exec         *motion.Executor
	iv           *motion.Interleaver
	limits       Limits
	pitchRate    float64
	yawRate      float64
	settleMargin time.Duration
	requireCal   bool

	mu  sync.Mutex
	pos Position
	cal Calibration
}

// New builds a controller on top of exec. Relative moves are sliced by iv;
// a default Interleaver is used when iv is nil.
func New(exec *motion.Executor, iv *motion.Interleaver, opts Options) (*Turret, error) {
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if opts.SettleMargin <= 0 {
		opts.SettleMargin = DefaultSettleMargin
	}
	if opts.Name == "" {
		opts.Name = "turret"
	}
	if iv == nil {
		iv = motion.NewInterleaver(exec, 0)
	}
	t := &Turret{
		name:         opts.Name,
		exec:         exec,
		iv:           iv,
		limits:       opts.Limits,
		pitchRate:    opts.Limits.PitchRate(),
		yawRate:      opts.Limits.YawRate(),
		settleMargin: opts.SettleMargin,
		requireCal:   !opts.AllowUncalibrated,
	}
	debug.Verbose("Turret %s: pitch rate %.5f s/deg, yaw rate %.5f s/deg", t.name, t.pitchRate, t.yawRate)
	return t, nil
}

func (t *Turret) Name() string { return t.name }
func (t *Turret) Limits() Limits { return t.limits }
func (t *Turret) Executor() *motion.Executor { return t.exec }
func (t *Turret) Interleaver() *motion.Interleaver { return t.iv }

// Rates returns seconds per degree for pitch and yaw.
func (t *Turret) Rates() (pitch, yaw float64) { return t.pitchRate, t.yawRate }

// Settle is how long Calibrate drives toward the end-stops.
func (t *Turret) Settle() time.Duration { return t.limits.Settle(t.settleMargin) }

func (t *Turret) Position() Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

func (t *Turret) Calibration() Calibration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cal
}

// Snapshot returns the current controller state.
func (t *Turret) Snapshot() Snapshot {
	t.mu.Lock()
	pos, cal := t.pos, t.cal
	t.mu.Unlock()

	s := Snapshot{
		Name:       t.name,
		Calibrated: cal.Calibrated,
		Pitch:      pos.Pitch,
		Yaw:        pos.Yaw,
		State:      t.exec.State().Name(),
		Last:       t.exec.Last().String(),
		Busy:       t.exec.Busy(),
		PitchRate:  t.pitchRate,
		YawRate:    t.yawRate,
		Limits:     t.limits,
	}
	if cal.Calibrated {
		at := cal.At
		s.Extreme = cal.Extreme.String()
		s.CalibratedAt = &at
	}
	return s
}

func (t *Turret) checkCalibrated() error {
	if t.Calibration().Calibrated {
		return nil
	}
	if t.requireCal {
		return ErrNotCalibrated
	}
	debug.Warn("Turret %s is not calibrated, moving from the power-on origin", t.name)
	return nil
}

// Pitch moves to an absolute pitch angle, clamped to the pitch range.
func (t *Turret) Pitch(ctx context.Context, angle float64) (Move, error) {
	return t.absolute(ctx, AxisPitch, angle)
}

// Yaw moves to an absolute yaw angle, clamped to the yaw range.
func (t *Turret) Yaw(ctx context.Context, angle float64) (Move, error) {
	return t.absolute(ctx, AxisYaw, angle)
}

func (t *Turret) absolute(ctx context.Context, axis Axis, angle float64) (Move, error) {
	if err := t.checkCalibrated(); err != nil {
		return Move{}, err
	}
	var mv Move
	err := t.exec.Run(ctx, func(ctx context.Context, m *motion.Motion) error {
		var err error
		mv, err = t.moveWithin(ctx, m, axis, angle)
		return err
	})
	return mv, err
}

// Point moves pitch then yaw to absolute angles.
func (t *Turret) Point(ctx context.Context, pitch, yaw float64) ([]Move, error) {
	if err := t.checkCalibrated(); err != nil {
		return nil, err
	}
	var moves []Move
	err := t.exec.Run(ctx, func(ctx context.Context, m *motion.Motion) error {
		var err error
		moves, err = t.pointWithin(ctx, m, pitch, yaw)
		return err
	})
	return moves, err
}

func (t *Turret) pointWithin(ctx context.Context, m *motion.Motion, pitch, yaw float64) ([]Move, error) {
	moves := make([]Move, 0, 2)
	mv, err := t.moveWithin(ctx, m, AxisPitch, pitch)
	if err != nil {
		return moves, err
	}
	moves = append(moves, mv)
	mv, err = t.moveWithin(ctx, m, AxisYaw, yaw)
	if err != nil {
		return moves, err
	}
	return append(moves, mv), nil
}

// plan works out one absolute axis move from the tracked position.
func (t *Turret) plan(axis Axis, angle float64) Move {
	pos := t.Position()
	mv := Move{Axis: axis, Requested: angle}
	var current, rate float64
	if axis == AxisPitch {
		mv.Target, mv.Clamped = t.limits.ClampPitch(angle)
		current, rate = pos.Pitch, t.pitchRate
		mv.Command = command.Up
		if mv.Target < current {
			mv.Command = command.Down
		}
	} else {
		mv.Target, mv.Clamped = t.limits.ClampYaw(angle)
		current, rate = pos.Yaw, t.yawRate
		mv.Command = command.Right
		if mv.Target < current {
			mv.Command = command.Left
		}
	}
	mv.Delta = mv.Target - current
	mv.Duration = motion.Seconds(math.Abs(mv.Delta * rate))
	return mv
}

// moveWithin runs one absolute axis move inside a running motion. A move
// that is interrupted after the launcher started driving leaves the tracked
// angle where the elapsed time says it should be.
func (t *Turret) moveWithin(ctx context.Context, m *motion.Motion, axis Axis, angle float64) (Move, error) {
	mv := t.plan(axis, angle)
	if mv.Clamped {
		debug.Info("%s %.2f out of range, clamped to %.2f", axis, mv.Requested, mv.Target)
	}
	if mv.Duration <= 0 {
		debug.Verbose("%s already at %.2f", axis, mv.Target)
		return mv, nil
	}
	debug.Move(string(axis), mv.Duration, mv.Command.String())

	elapsed, err := m.Timed(ctx, mv.Command, mv.Duration)
	if err != nil {
		if elapsed > 0 {
			frac := math.Min(1, float64(elapsed)/float64(mv.Duration))
			t.shift(axis, mv.Delta*frac)
		}
		return mv, err
	}
	t.set(axis, mv.Target)
	debug.Live("%s set to %.2f", axis, mv.Target)
	return mv, nil
}

func (t *Turret) set(axis Axis, v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if axis == AxisPitch {
		t.pos.Pitch = v
	} else {
		t.pos.Yaw = v
	}
}

func (t *Turret) shift(axis Axis, d float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if axis == AxisPitch {
		t.pos.Pitch, _ = t.limits.ClampPitch(t.pos.Pitch + d)
	} else {
		t.pos.Yaw, _ = t.limits.ClampYaw(t.pos.Yaw + d)
	}
}

// Nudge moves both axes by relative degrees at once, sliced by the interleaver.
// Targets are clamped to the axis ranges.
func (t *Turret) Nudge(ctx context.Context, dYaw, dPitch float64) (Relative, error) {
	if err := t.checkCalibrated(); err != nil {
		return Relative{}, err
	}
	var rel Relative
	err := t.exec.Run(ctx, func(ctx context.Context, m *motion.Motion) error {
		pos := t.Position()
		rel.Yaw = t.plan(AxisYaw, pos.Yaw+dYaw)
		rel.Pitch = t.plan(AxisPitch, pos.Pitch+dPitch)
		for _, mv := range []Move{rel.Yaw, rel.Pitch} {
			if mv.Clamped {
				debug.Info("%s %.2f out of range, clamped to %.2f", mv.Axis, mv.Requested, mv.Target)
			}
		}

		yawSec := rel.Yaw.Delta * t.yawRate
		pitchSec := rel.Pitch.Delta * t.pitchRate
		yawSec, pitchSec = t.dropShortAxis(&rel, pos, yawSec, pitchSec)
		var err error
		rel.Plan, err = t.iv.AimWithin(ctx, m, yawSec, pitchSec)
		if err != nil {
			t.shiftSliced(rel, yawSec, pitchSec)
			return err
		}
		t.set(AxisYaw, rel.Yaw.Target)
		t.set(AxisPitch, rel.Pitch.Target)
		return nil
	})
	return rel, err
}

// dropShortAxis turns a two-axis nudge whose shorter axis needs less than
// one slice into a single-axis move. The interleave ratio would otherwise
// drive the longer axis for ratio slices in one batch. The dropped axis keeps
// its tracked angle.
func (t *Turret) dropShortAxis(rel *Relative, pos Position, yawSec, pitchSec float64) (float64, float64) {
	if yawSec == 0 || pitchSec == 0 {
		return yawSec, pitchSec
	}
	slice := t.iv.Slice().Seconds()
	switch {
	case math.Abs(pitchSec) <= math.Abs(yawSec) && math.Abs(pitchSec) < slice:
		debug.Verbose("pitch nudge %.3fs is under one slice, moving yaw only", pitchSec)
		rel.Pitch = Move{Axis: AxisPitch, Requested: rel.Pitch.Requested, Target: pos.Pitch}
		return yawSec, 0
	case math.Abs(yawSec) < math.Abs(pitchSec) && math.Abs(yawSec) < slice:
		debug.Verbose("yaw nudge %.3fs is under one slice, moving pitch only", yawSec)
		rel.Yaw = Move{Axis: AxisYaw, Requested: rel.Yaw.Requested, Target: pos.Yaw}
		return 0, pitchSec
	}
	return yawSec, pitchSec
}

// shiftSliced credits each axis with the slices completed before an
// interleaved move was interrupted.
func (t *Turret) shiftSliced(rel Relative, yawSec, pitchSec float64) {
	slice := t.iv.Slice().Seconds()
	done := func(c command.Code) float64 {
		switch c {
		case rel.Plan.Primary:
			return float64(rel.Plan.PrimarySlices) * slice
		case rel.Plan.Secondary:
			return float64(rel.Plan.SecondarySlices) * slice
		}
		return 0
	}
	if s := math.Min(done(rel.Yaw.Command), math.Abs(yawSec)); s > 0 {
		t.shift(AxisYaw, math.Copysign(s/t.yawRate, yawSec))
	}
	if s := math.Min(done(rel.Pitch.Command), math.Abs(pitchSec)); s > 0 {
		t.shift(AxisPitch, math.Copysign(s/t.pitchRate, pitchSec))
	}
}

// Calibrate drives both axes into their end-stops with a single composite
// frame, waits for the slower axis to get there, stops, and resets the
// tracked position to those extremes. If the wait is interrupted the
// calibration state is left unchanged.
func (t *Turret) Calibrate(ctx context.Context, opts CalibrateOptions) error {
	return t.exec.Run(ctx, func(ctx context.Context, m *motion.Motion) error {
		code := command.CalibrationCode(opts.Opposite)
		extreme, target := Minimum, Position{Pitch: t.limits.PitchMin, Yaw: t.limits.YawMin}
		if opts.Opposite {
			extreme, target = Maximum, Position{Pitch: t.limits.PitchMax, Yaw: t.limits.YawMax}
		}

		debug.Section("Calibration")
		debug.Info("Turret %s calibrating toward %s (%s) for %v", t.name, extreme, code, t.Settle())
		if err := m.Composite(ctx, code); err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		sleepErr := m.Sleep(ctx, t.Settle())
		if err := m.Stop(); err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		if sleepErr != nil {
			debug.Warn("Calibration interrupted: %v", sleepErr)
			return sleepErr
		}

		t.mu.Lock()
		t.pos = target
		t.cal = Calibration{Calibrated: true, Extreme: extreme, At: m.Clock().Now()}
		t.mu.Unlock()
		debug.Info("Turret %s calibrated at pitch %.2f yaw %.2f", t.name, target.Pitch, target.Yaw)

		if opts.AndCenter {
			_, err := t.pointWithin(ctx, m, 0, 0)
			return err
		}
		return nil
	})
}

// Center moves pitch then yaw to 0. Calling it again sends nothing.
func (t *Turret) Center(ctx context.Context) error {
	debug.Info("Turret %s centering", t.name)
	_, err := t.Point(ctx, 0, 0)
	return err
}

// Estop preempts any motion in flight and stops the launcher.
func (t *Turret) Estop() error {
	return t.exec.Estop()
}
