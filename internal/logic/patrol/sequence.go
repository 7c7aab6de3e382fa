package patrol

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/geometry"
)

// Sequence contains high-level logic for sweeping the turret over an area.
type Sequence struct {
	turret *aim.Turret
}

func NewSequence(t *aim.Turret) *Sequence {
	return &Sequence{turret: t}
}

// SweepParams defines the parameters for a patrol.
type SweepParams struct {
	Plan *geometry.SweepPlan // calculated sweep plan

	Dwell  time.Duration // pause at each point
	Fire   bool          // fire once at each point, after the dwell
	Passes int           // number of times to run the plan; 0 runs it once
}

// InitializePosition moves the turret to the start position (left, top).
func (s *Sequence) InitializePosition(ctx context.Context, plan *geometry.SweepPlan) error {
	debug.Section("Initializing Position")
	debug.Live("Moving to start position (yaw %.2f, pitch %.2f)", plan.StartYaw, plan.StartPitch)

	if _, err := s.turret.Point(ctx, plan.StartPitch, plan.StartYaw); err != nil {
		return err
	}

	debug.Live("Initialization complete")
	return nil
}

// Run visits every point of the plan in serpentine order and returns how
// many points were reached. The turret must be calibrated: the plan is in
// absolute angles.
func (s *Sequence) Run(ctx context.Context, p SweepParams) (int, error) {
	if !s.turret.Calibration().Calibrated {
		return 0, aim.ErrNotCalibrated
	}
	plan := p.Plan
	passes := p.Passes
	if passes < 1 {
		passes = 1
	}
	exec := s.turret.Executor()

	if err := s.InitializePosition(ctx, plan); err != nil {
		return 0, err
	}

	visited := 0
	for pass := 0; pass < passes; pass++ {
		debug.Step(pass+1, "patrol pass")
		for i, pt := range plan.Points {
			select {
			case <-ctx.Done():
				return visited, ctx.Err()
			default:
			}

			if i == 0 || pt.Col != plan.Points[i-1].Col {
				direction := "down"
				if pt.Col%2 == 1 {
					direction = "up"
				}
				debug.Column(pt.Col+1, plan.Columns, direction)
			}

			if _, err := s.turret.Point(ctx, pt.Pitch, pt.Yaw); err != nil {
				return visited, err
			}
			visited++
			debug.Waypoint(pt.Col+1, pt.Row+1, pt.Pitch, pt.Yaw)

			if p.Dwell > 0 {
				if err := exec.Clock().Sleep(ctx, p.Dwell); err != nil {
					return visited, err
				}
			}
			if p.Fire {
				if err := exec.Fire(ctx); err != nil {
					return visited, err
				}
			}
		}
	}

	debug.Summary(fmt.Sprintf("Patrol done: %d points, %d pass(es)", visited, passes))
	return visited, nil
}
