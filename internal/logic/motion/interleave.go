package motion

import (
	"context"
	"math"
	"time"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

const (
	// DefaultSlice is the length of one interleaved single-axis send.
	DefaultSlice = 50 * time.Millisecond

	// zeroEpsilon is the magnitude under which an axis counts as not moving.
	zeroEpsilon = 0.0001
)

func zeroish(v float64) bool {
	return math.Abs(v) < zeroEpsilon
}

// Plan describes how a relative two-axis aim is split into slices.
type Plan struct {
	Primary   command.Code  // longer axis, or the only moving one
	Secondary command.Code  // shorter axis, Stop when only one axis moves
	Ratio     int           // primary slices per secondary slice; 0 when not interleaving
	Total     time.Duration // duration of the longer axis

	PrimarySlices   int
	SecondarySlices int
	Elapsed         time.Duration // clock time the slicing actually took
}

// Interleaved reports whether both axes move.
func (p Plan) Interleaved() bool {
	return p.Ratio > 0
}

// PlanAim classifies a relative aim given in signed seconds per axis.
// Positive yaw is right, positive pitch is up.
func PlanAim(yaw, pitch float64) Plan {
	yawCmd, yawMag := command.Stop, 0.0
	if !zeroish(yaw) {
		yawCmd, yawMag = command.Left, math.Abs(yaw)
		if yaw > 0 {
			yawCmd = command.Right
		}
	}
	pitchCmd, pitchMag := command.Stop, 0.0
	if !zeroish(pitch) {
		pitchCmd, pitchMag = command.Down, math.Abs(pitch)
		if pitch > 0 {
			pitchCmd = command.Up
		}
	}

	total := math.Max(yawMag, pitchMag)
	p := Plan{Total: Seconds(total)}
	switch {
	case yawCmd == command.Stop && pitchCmd == command.Stop:
		p.Primary, p.Secondary = command.Stop, command.Stop
	case yawCmd == command.Stop:
		p.Primary, p.Secondary = pitchCmd, command.Stop
	case pitchCmd == command.Stop:
		p.Primary, p.Secondary = yawCmd, command.Stop
	default:
		p.Ratio = int(math.Ceil(total / math.Min(yawMag, pitchMag)))
		if pitchMag > yawMag {
			p.Primary, p.Secondary = pitchCmd, yawCmd
		} else {
			p.Primary, p.Secondary = yawCmd, pitchCmd
		}
	}
	return p
}

// Interleaver approximates simultaneous two-axis motion on a channel that
// carries one direction per frame, by alternating short single-axis sends.
//
// The slicing is the quantized scheme: Ratio primary slices then one
// secondary slice per batch, with the elapsed time checked once per batch.
// Rounding the ratio up gives the secondary axis slightly more than its share.
type Interleaver struct {
	exec  *Executor
	slice time.Duration
}

// NewInterleaver uses DefaultSlice when slice is zero.
func NewInterleaver(e *Executor, slice time.Duration) *Interleaver {
	if slice <= 0 {
		slice = DefaultSlice
	}
	return &Interleaver{exec: e, slice: slice}
}

// Slice returns the length of one single-axis send.
func (iv *Interleaver) Slice() time.Duration { return iv.slice }

// Aim runs a relative aim (signed seconds per axis) as its own motion.
func (iv *Interleaver) Aim(ctx context.Context, yaw, pitch float64) (Plan, error) {
	var plan Plan
	err := iv.exec.Run(ctx, func(ctx context.Context, m *Motion) error {
		var err error
		plan, err = iv.AimWithin(ctx, m, yaw, pitch)
		return err
	})
	return plan, err
}

// AimWithin runs a relative aim inside a motion that is already running.
// Both axes zero sends nothing. A single moving axis is sliced without a
// ratio until its duration has elapsed. Otherwise each batch sends Ratio
// primary slices then one secondary slice, until the elapsed time reaches
// Total; overshoot is bounded by one batch. Every slice stops itself, so no
// final Stop is added.
func (iv *Interleaver) AimWithin(ctx context.Context, m *Motion, yaw, pitch float64) (Plan, error) {
	plan := PlanAim(yaw, pitch)
	if plan.Primary == command.Stop {
		return plan, nil
	}
	debug.Verbose("Aim: primary=%s secondary=%s ratio=%d total=%v", plan.Primary, plan.Secondary, plan.Ratio, plan.Total)

	clk := m.Clock()
	start := clk.Now()
	for {
		batch := plan.Ratio
		if !plan.Interleaved() {
			batch = 1
		}
		for i := 0; i < batch; i++ {
			if err := m.Send(ctx, plan.Primary, iv.slice); err != nil {
				plan.Elapsed = clk.Now().Sub(start)
				return plan, err
			}
			plan.PrimarySlices++
		}
		if plan.Interleaved() {
			if err := m.Send(ctx, plan.Secondary, iv.slice); err != nil {
				plan.Elapsed = clk.Now().Sub(start)
				return plan, err
			}
			plan.SecondarySlices++
		}

		if clk.Now().Sub(start) >= plan.Total {
			break
		}
	}
	plan.Elapsed = clk.Now().Sub(start)
	debug.Live("Aim done: %d primary / %d secondary slices in %v", plan.PrimarySlices, plan.SecondarySlices, plan.Elapsed)
	return plan, nil
}
