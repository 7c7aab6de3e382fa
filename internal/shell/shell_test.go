package shell

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/clock"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
	"github.com/cjeanneret/TurretGo/internal/logic/geometry"
	"github.com/cjeanneret/TurretGo/internal/logic/motion"
)

func newTestShell(t *testing.T) (*Shell, *transport.Recorder, *bytes.Buffer) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := transport.NewRecorder(clk)
	exec := motion.NewExecutor(rec, motion.Options{Clock: clk})
	tur, err := aim.New(exec, nil, aim.Options{Name: "console"})
	if err != nil {
		t.Fatalf("aim.New: %v", err)
	}
	s := New(context.Background(), tur, PatrolDefaults{
		Sweep: geometry.SweepRequest{YawSpan: 20, YawStep: 10, PitchStep: 10},
	})
	var out bytes.Buffer
	s.SetOut(&out)
	return s, rec, &out
}

func TestShell(t *testing.T) {
	Convey("Given a console on a fresh turret", t, func() {
		s, rec, out := newTestShell(t)

		Convey("status reports an uncalibrated turret", func() {
			So(s.Process("status"), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "console: pitch 0.00 yaw 0.00")
			So(out.String(), ShouldContainSubstring, "not calibrated")
		})

		Convey("direction commands move then stop", func() {
			So(s.Process("up", "0.25"), ShouldBeNil)
			So(s.Process("left"), ShouldBeNil)
			So(rec.Codes(), ShouldResemble, []command.Code{command.Up, command.Stop, command.Left, command.Stop})
		})

		Convey("fire and stop send single frames", func() {
			So(s.Process("fire"), ShouldBeNil)
			So(s.Process("stop"), ShouldBeNil)
			So(rec.Codes(), ShouldResemble, []command.Code{command.Fire, command.Stop})
		})

		Convey("absolute moves need calibration", func() {
			err := s.Process("point", "10", "45")
			So(errors.Is(err, aim.ErrNotCalibrated), ShouldBeTrue)
			So(rec.Codes(), ShouldBeEmpty)
		})

		Convey("relative aim interleaves both axes", func() {
			So(s.Process("aim", "0.2", "0.1"), ShouldBeNil)
			So(rec.Count(command.Right), ShouldEqual, 4)
			So(rec.Count(command.Up), ShouldEqual, 2)
		})

		Convey("bad arguments are usage errors", func() {
			for _, args := range [][]string{
				{"point", "10"},
				{"nudge", "x", "1"},
				{"yaw", "NaN"},
				{"up", "-1"},
				{"calibrate", "sideways"},
				{"patrol", "20", "0", "0"},
			} {
				err := s.Process(args...)
				So(errors.Is(err, ErrUsage), ShouldBeTrue)
			}
			So(rec.Codes(), ShouldBeEmpty)
		})

		Convey("unknown commands are rejected", func() {
			So(s.Process("dance"), ShouldNotBeNil)
		})

		Convey("after calibrating with center", func() {
			So(s.Process("calibrate", "center"), ShouldBeNil)
			snap := s.turret.Snapshot()
			So(snap.Calibrated, ShouldBeTrue)
			So(snap.Pitch, ShouldEqual, 0.0)
			So(snap.Yaw, ShouldEqual, 0.0)

			Convey("point reaches the target", func() {
				So(s.Process("point", "10", "45"), ShouldBeNil)
				So(s.turret.Position(), ShouldResemble, aim.Position{Pitch: 10, Yaw: 45})
				So(out.String(), ShouldContainSubstring, "yaw -> 45.00")
			})

			Convey("out of range targets are clamped", func() {
				So(s.Process("pitch", "90"), ShouldBeNil)
				So(s.turret.Position().Pitch, ShouldEqual, aim.DefaultLimits().PitchMax)
				So(out.String(), ShouldContainSubstring, "clamped from 90.00")
			})

			Convey("nudge is relative", func() {
				So(s.Process("yaw", "30"), ShouldBeNil)
				So(s.Process("nudge", "-10", "0"), ShouldBeNil)
				So(s.turret.Position().Yaw, ShouldAlmostEqual, 20, 1e-9)
			})

			Convey("patrol sweeps the configured area", func() {
				So(s.Process("patrol"), ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "Patrol: 3 columns x 1 rows, 1 pass(es)")
				So(out.String(), ShouldContainSubstring, "Visited 3 points")
				So(s.turret.Position().Yaw, ShouldAlmostEqual, 10, 1e-9)
			})

			Convey("patrol refuses a plan with too many points", func() {
				rec.Reset()
				s.patrol.Sweep.YawStep, s.patrol.Sweep.PitchStep = 1e-9, 1e-9
				err := s.Process("patrol", "90", "30")
				So(errors.Is(err, geometry.ErrInvalidSweep), ShouldBeTrue)
				So(rec.Codes(), ShouldBeEmpty)
			})

			Convey("patrol takes a span and passes", func() {
				So(s.Process("patrol", "20", "0", "2"), ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "Visited 6 points")
			})

			Convey("center returns home", func() {
				So(s.Process("yaw", "-60"), ShouldBeNil)
				So(s.Process("center"), ShouldBeNil)
				So(s.turret.Position(), ShouldResemble, aim.Position{})
			})
		})

		Convey("a cancelled context aborts the motion", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			s.ctx = ctx
			So(errors.Is(s.Process("right", "1"), context.Canceled), ShouldBeTrue)
		})
	})
}
