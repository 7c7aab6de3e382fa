package aim

import (
	"fmt"
	"time"

	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// Axis names one of the two motion axes.
type Axis string

const (
	AxisPitch Axis = "pitch"
	AxisYaw   Axis = "yaw"
)

// Extreme selects which pair of end-stops calibration drives to.
type Extreme int

const (
	// Minimum is pitch_min / yaw_min, reached with Down|Left.
	Minimum Extreme = iota
	// Maximum is pitch_max / yaw_max, reached with Up|Right.
	Maximum
)

func (e Extreme) String() string {
	if e == Maximum {
		return "max"
	}
	return "min"
}

// Calibration is either uncalibrated (the zero value) or calibrated against
// an extreme at a given time.
type Calibration struct {
	Calibrated bool
	Extreme    Extreme
	At         time.Time
}

func (c Calibration) String() string {
	if !c.Calibrated {
		return "uncalibrated"
	}
	return fmt.Sprintf("calibrated(%s)", c.Extreme)
}

// Position is the believed orientation in degrees.
type Position struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Move reports what an absolute single-axis move did. Requested differs from
// Target when the request was clamped to the axis range.
type Move struct {
	Axis      Axis          `json:"axis"`
	Requested float64       `json:"requested"`
	Target    float64       `json:"target"`
	Clamped   bool          `json:"clamped"`
	Delta     float64       `json:"delta"`
	Duration  time.Duration `json:"duration"`
	Command   command.Code  `json:"-"`
}

// Moved reports whether a frame was sent for this move.
func (m Move) Moved() bool { return m.Duration > 0 }

// Snapshot is the controller state as served to operators.
type Snapshot struct {
	Name         string     `json:"name"`
	Calibrated   bool       `json:"calibrated"`
	Extreme      string     `json:"extreme,omitempty"`
	CalibratedAt *time.Time `json:"calibrated_at,omitempty"`
	Pitch        float64    `json:"pitch"`
	Yaw          float64    `json:"yaw"`
	State        string     `json:"state"`
	Last         string     `json:"last_command"`
	Busy         bool       `json:"busy"`
	PitchRate    float64    `json:"pitch_rate"`
	YawRate      float64    `json:"yaw_rate"`
	Limits       Limits     `json:"limits"`
}
