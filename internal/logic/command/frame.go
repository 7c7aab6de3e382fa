package command

import (
	"errors"
	"fmt"
)

// FrameSize is the length of every frame sent to the launcher.
const FrameSize = 8

// Frame opcodes.
const (
	OpMove  byte = 0x02 // move/stop/fire, value is a Code
	OpPower byte = 0x03 // power/connect, value is 1 (on) or 0 (off)
)

var ErrFrameSize = errors.New("invalid frame size")

// Frame is the 8-byte report layout: [opcode, value, 0, 0, 0, 0, 0, 0].
type Frame [FrameSize]byte

// MoveFrame wraps a code in a move frame. It does not validate the code.
func MoveFrame(c Code) Frame {
	return Frame{OpMove, byte(c)}
}

// PowerFrame builds the connect (on) or disconnect (off) frame.
func PowerFrame(on bool) Frame {
	var v byte
	if on {
		v = 0x01
	}
	return Frame{OpPower, v}
}

// ParseFrame decodes raw bytes received from a capture or test fixture.
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameSize {
		return f, fmt.Errorf("parse frame: got %d bytes, want %d: %w", len(b), FrameSize, ErrFrameSize)
	}
	copy(f[:], b)
	if f.Opcode() != OpMove && f.Opcode() != OpPower {
		return f, fmt.Errorf("parse frame: unknown opcode 0x%02x", f.Opcode())
	}
	return f, nil
}

func (f Frame) Opcode() byte { return f[0] }

// Code returns the command carried by a move frame, 0 for other frames.
func (f Frame) Code() Code {
	if f.Opcode() != OpMove {
		return 0
	}
	return Code(f[1])
}

// IsMove reports whether f is a move/stop/fire frame.
func (f Frame) IsMove() bool { return f.Opcode() == OpMove }

// Bytes returns a copy of the frame as a slice.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	copy(b, f[:])
	return b
}

func (f Frame) String() string {
	switch f.Opcode() {
	case OpMove:
		return "move(" + f.Code().String() + ")"
	case OpPower:
		if f[1] != 0 {
			return "power(on)"
		}
		return "power(off)"
	default:
		return fmt.Sprintf("frame(0x%02x,0x%02x)", f[0], f[1])
	}
}
