package aim

import (
	"fmt"
	"time"

	"github.com/cjeanneret/TurretGo/internal/logic/motion"
)

// Limits are the mechanical range of each axis in degrees and the time in
// seconds the launcher takes to travel the full range.
type Limits struct {
	PitchMin float64 `yaml:"pitch_min" json:"pitch_min"`
	PitchMax float64 `yaml:"pitch_max" json:"pitch_max"`
	PitchSec float64 `yaml:"pitch_sec" json:"pitch_sec"`
	YawMin   float64 `yaml:"yaw_min" json:"yaw_min"`
	YawMax   float64 `yaml:"yaw_max" json:"yaw_max"`
	YawSec   float64 `yaml:"yaw_sec" json:"yaw_sec"`
}

// DefaultLimits are measured on the stock USB launcher.
func DefaultLimits() Limits {
	return Limits{
		PitchMin: -5.0,
		PitchMax: 25.9,
		PitchSec: 1.014,
		YawMin:   -135.0,
		YawMax:   135.0,
		YawSec:   6.127,
	}
}

// Validate checks that both ranges are non-empty and travel times positive.
func (l Limits) Validate() error {
	if l.PitchMax <= l.PitchMin {
		return fmt.Errorf("pitch_max (%.2f) must be greater than pitch_min (%.2f)", l.PitchMax, l.PitchMin)
	}
	if l.YawMax <= l.YawMin {
		return fmt.Errorf("yaw_max (%.2f) must be greater than yaw_min (%.2f)", l.YawMax, l.YawMin)
	}
	if l.PitchSec <= 0 {
		return fmt.Errorf("pitch_sec must be positive, got %.3f", l.PitchSec)
	}
	if l.YawSec <= 0 {
		return fmt.Errorf("yaw_sec must be positive, got %.3f", l.YawSec)
	}
	return nil
}

// PitchRate is seconds of motion per degree of pitch.
func (l Limits) PitchRate() float64 { return l.PitchSec / (l.PitchMax - l.PitchMin) }

// YawRate is seconds of motion per degree of yaw.
func (l Limits) YawRate() float64 { return l.YawSec / (l.YawMax - l.YawMin) }

// Settle is how long calibration drives toward the end-stops: the slower
// axis' full travel plus margin.
func (l Limits) Settle(margin time.Duration) time.Duration {
	longest := l.PitchSec
	if l.YawSec > longest {
		longest = l.YawSec
	}
	return motion.Seconds(longest) + margin
}

// ClampPitch reports the pitch target inside the range and whether it moved.
func (l Limits) ClampPitch(angle float64) (float64, bool) {
	return clamp(angle, l.PitchMin, l.PitchMax)
}

// ClampYaw reports the yaw target inside the range and whether it moved.
func (l Limits) ClampYaw(angle float64) (float64, bool) {
	return clamp(angle, l.YawMin, l.YawMax)
}

func clamp(v, lo, hi float64) (float64, bool) {
	switch {
	case v < lo:
		return lo, true
	case v > hi:
		return hi, true
	}
	return v, false
}
