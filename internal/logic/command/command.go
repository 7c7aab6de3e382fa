package command

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Code is a single direction/action value understood by the launcher.
// Each value is a distinct bit; only calibration frames may OR two of them.
type Code uint8

// Direction bits.
const (
	Down  Code = 0x01
	Up    Code = 0x02
	Left  Code = 0x04
	Right Code = 0x08
)

// Action bits.
const (
	Fire Code = 0x10
	Stop Code = 0x20
)

const (
	pitchMask     = Down | Up
	yawMask       = Left | Right
	directionMask = pitchMask | yawMask
	actionMask    = Fire | Stop
	knownMask     = directionMask | actionMask
)

var (
	ErrInvalidCode         = errors.New("invalid command code")
	ErrCompositeNotAllowed = errors.New("composite command only allowed for calibration")
)

var names = []struct {
	code Code
	name string
}{
	{Down, "down"},
	{Up, "up"},
	{Left, "left"},
	{Right, "right"},
	{Fire, "fire"},
	{Stop, "stop"},
}

func (c Code) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, n := range names {
		if c&n.code != 0 {
			parts = append(parts, n.name)
		}
	}
	if c&^knownMask != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(c&^knownMask)))
	}
	return strings.Join(parts, "|")
}

// IsSingle reports whether c carries exactly one known bit.
func (c Code) IsSingle() bool {
	return c&^knownMask == 0 && bits.OnesCount8(uint8(c)) == 1
}

// IsDirection reports whether c is exactly one direction bit.
func (c Code) IsDirection() bool {
	return c.IsSingle() && c&directionMask != 0
}

// IsAction reports whether c is exactly Fire or Stop.
func (c Code) IsAction() bool {
	return c == Fire || c == Stop
}

// IsPitch reports whether c is Up or Down.
func (c Code) IsPitch() bool { return c == Up || c == Down }

// IsYaw reports whether c is Left or Right.
func (c Code) IsYaw() bool { return c == Left || c == Right }

// IsComposite reports whether c is one pitch bit OR'd with one yaw bit.
func (c Code) IsComposite() bool {
	if c&^directionMask != 0 {
		return false
	}
	return bits.OnesCount8(uint8(c&pitchMask)) == 1 && bits.OnesCount8(uint8(c&yawMask)) == 1
}

// Directions splits c into its direction bits, pitch first.
func (c Code) Directions() []Code {
	var out []Code
	for _, d := range []Code{Down, Up, Left, Right} {
		if c&d != 0 {
			out = append(out, d)
		}
	}
	return out
}

// Compose builds a calibration composite from one pitch and one yaw direction.
func Compose(pitch, yaw Code) (Code, error) {
	if !pitch.IsPitch() {
		return 0, fmt.Errorf("compose: %s is not a pitch direction: %w", pitch, ErrInvalidCode)
	}
	if !yaw.IsYaw() {
		return 0, fmt.Errorf("compose: %s is not a yaw direction: %w", yaw, ErrInvalidCode)
	}
	return pitch | yaw, nil
}

// CalibrationCode returns the composite that drives both axes to an end-stop:
// Down|Left normally, Up|Right for the opposite extreme.
func CalibrationCode(opposite bool) Code {
	if opposite {
		return Up | Right
	}
	return Down | Left
}

// Validate checks that c may be transmitted. Ordinary frames carry exactly one
// bit; composites are accepted only when calibration is true.
func Validate(c Code, calibration bool) error {
	if c.IsSingle() {
		return nil
	}
	if c.IsComposite() {
		if calibration {
			return nil
		}
		return fmt.Errorf("%s: %w", c, ErrCompositeNotAllowed)
	}
	return fmt.Errorf("%s: %w", c, ErrInvalidCode)
}
