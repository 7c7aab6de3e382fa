package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/TurretGo/internal/logic/aim"
)

// SweepRequest describes the area to patrol, centred on a heading.
type SweepRequest struct {
	CenterYaw   float64 `json:"center_yaw"`
	CenterPitch float64 `json:"center_pitch"`
	YawSpan     float64 `json:"yaw_span"`   // total horizontal degrees
	PitchSpan   float64 `json:"pitch_span"` // total vertical degrees
	YawStep     float64 `json:"yaw_step"`   // max degrees between columns
	PitchStep   float64 `json:"pitch_step"` // max degrees between rows
}

// Point is one stop of a sweep.
type Point struct {
	Col   int     `json:"col"`
	Row   int     `json:"row"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// SweepPlan is the grid of stops covering a request, clipped to the axis
// limits.
type SweepPlan struct {
	Columns   int
	Rows      int
	YawStep   float64 // actual spacing between columns
	PitchStep float64 // actual spacing between rows

	// Start position: left column, top row.
	StartYaw   float64
	StartPitch float64

	// Points in visiting order: columns left to right, even columns top to
	// bottom and odd columns bottom to top.
	Points []Point
}

var ErrInvalidSweep = errors.New("invalid sweep")

// MaxSweepPoints caps the number of stops in one plan.
const MaxSweepPoints = 10000

// PlanSweep computes the serpentine grid for req within lim.
func PlanSweep(req SweepRequest, lim aim.Limits) (*SweepPlan, error) {
	if req.YawSpan < 0 || req.PitchSpan < 0 {
		return nil, fmt.Errorf("%w: spans must not be negative", ErrInvalidSweep)
	}
	if req.YawSpan > 0 && req.YawStep <= 0 {
		return nil, fmt.Errorf("%w: yaw_step must be positive", ErrInvalidSweep)
	}
	if req.PitchSpan > 0 && req.PitchStep <= 0 {
		return nil, fmt.Errorf("%w: pitch_step must be positive", ErrInvalidSweep)
	}

	left, right := span(req.CenterYaw, req.YawSpan, lim.YawMin, lim.YawMax)
	bottom, top := span(req.CenterPitch, req.PitchSpan, lim.PitchMin, lim.PitchMax)

	if n := stops(right-left, req.YawStep) * stops(top-bottom, req.PitchStep); !(n <= MaxSweepPoints) {
		return nil, fmt.Errorf("%w: %.0f points exceed the limit of %d, use larger steps", ErrInvalidSweep, n, MaxSweepPoints)
	}
	columns, yawStep := divide(right-left, req.YawStep)
	rows, pitchStep := divide(top-bottom, req.PitchStep)

	plan := &SweepPlan{
		Columns:    columns,
		Rows:       rows,
		YawStep:    yawStep,
		PitchStep:  pitchStep,
		StartYaw:   left,
		StartPitch: top,
		Points:     make([]Point, 0, columns*rows),
	}
	for col := 0; col < columns; col++ {
		yaw := left + float64(col)*yawStep
		for i := 0; i < rows; i++ {
			row := i
			if col%2 == 1 {
				row = rows - 1 - i
			}
			plan.Points = append(plan.Points, Point{
				Col:   col,
				Row:   row,
				Yaw:   yaw,
				Pitch: top - float64(row)*pitchStep,
			})
		}
	}
	return plan, nil
}

// span returns [center-width/2, center+width/2] clipped to [lo, hi].
func span(center, width, lo, hi float64) (float64, float64) {
	a := math.Max(lo, math.Min(hi, center-width/2))
	b := math.Max(lo, math.Min(hi, center+width/2))
	return a, b
}

// divide returns the number of stops covering length with at most step
// between them, and the actual spacing.
func divide(length, step float64) (int, float64) {
	n := int(stops(length, step))
	if n == 1 {
		return 1, 0
	}
	return n, length / float64(n-1)
}

func stops(length, step float64) float64 {
	if length <= 0 || step <= 0 {
		return 1
	}
	return math.Ceil(length/step) + 1
}
