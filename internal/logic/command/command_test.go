package command

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCodeValues(t *testing.T) {
	Convey("codes keep the launcher bit layout", t, func() {
		So(Down, ShouldEqual, Code(0x01))
		So(Up, ShouldEqual, Code(0x02))
		So(Left, ShouldEqual, Code(0x04))
		So(Right, ShouldEqual, Code(0x08))
		So(Fire, ShouldEqual, Code(0x10))
		So(Stop, ShouldEqual, Code(0x20))
	})
}

func TestValidate(t *testing.T) {
	Convey("ordinary frames", t, func() {
		for _, c := range []Code{Down, Up, Left, Right, Fire, Stop} {
			So(Validate(c, false), ShouldBeNil)
		}

		Convey("reject composites outside calibration", func() {
			err := Validate(Down|Left, false)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrCompositeNotAllowed), ShouldBeTrue)
		})

		Convey("reject empty and unknown codes", func() {
			So(errors.Is(Validate(0, false), ErrInvalidCode), ShouldBeTrue)
			So(errors.Is(Validate(0x40, false), ErrInvalidCode), ShouldBeTrue)
			So(errors.Is(Validate(Fire|Stop, true), ErrInvalidCode), ShouldBeTrue)
		})
	})

	Convey("calibration frames", t, func() {
		So(Validate(Down|Left, true), ShouldBeNil)
		So(Validate(Up|Right, true), ShouldBeNil)

		Convey("need one bit per axis", func() {
			So(errors.Is(Validate(Up|Down, true), ErrInvalidCode), ShouldBeTrue)
			So(errors.Is(Validate(Left|Right, true), ErrInvalidCode), ShouldBeTrue)
			So(errors.Is(Validate(Down|Left|Fire, true), ErrInvalidCode), ShouldBeTrue)
		})
	})
}

func TestCompose(t *testing.T) {
	Convey("Compose builds calibration composites", t, func() {
		c, err := Compose(Down, Left)
		So(err, ShouldBeNil)
		So(c, ShouldEqual, CalibrationCode(false))

		c, err = Compose(Up, Right)
		So(err, ShouldBeNil)
		So(c, ShouldEqual, CalibrationCode(true))
		So(c.Directions(), ShouldResemble, []Code{Up, Right})

		Convey("and rejects swapped axes", func() {
			_, err := Compose(Left, Down)
			So(errors.Is(err, ErrInvalidCode), ShouldBeTrue)
			_, err = Compose(Up, Stop)
			So(errors.Is(err, ErrInvalidCode), ShouldBeTrue)
		})
	})
}

func TestCodeString(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{Up, "up"},
		{Stop, "stop"},
		{Down | Left, "down|left"},
		{0, "none"},
		{Fire | 0x80, "fire|0x80"},
	}
	for _, tc := range cases {
		if got := tc.code.String(); got != tc.want {
			t.Errorf("Code(0x%02x).String() = %q, want %q", uint8(tc.code), got, tc.want)
		}
	}
}

func TestStateOf(t *testing.T) {
	Convey("states are derived from codes", t, func() {
		So(StateOf(Stop), ShouldResemble, State(Stopped{}))
		So(StateOf(Fire), ShouldResemble, State(Firing{}))
		So(StateOf(Right), ShouldResemble, State(Moving{Direction: Right}))
		So(StateOf(Up|Right), ShouldResemble, State(Homing{Composite: Up | Right}))
		So(StateOf(0x40).Name(), ShouldEqual, "stopped")
	})
}
