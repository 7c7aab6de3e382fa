package patrol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/clock"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
	"github.com/cjeanneret/TurretGo/internal/logic/geometry"
	"github.com/cjeanneret/TurretGo/internal/logic/motion"
)

func newTestTurret(t *testing.T, calibrate bool) (*aim.Turret, *transport.Recorder, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := transport.NewRecorder(clk)
	exec := motion.NewExecutor(rec, motion.Options{Clock: clk})
	tur, err := aim.New(exec, nil, aim.Options{})
	if err != nil {
		t.Fatalf("aim.New: %v", err)
	}
	if calibrate {
		if err := tur.Calibrate(context.Background(), aim.CalibrateOptions{}); err != nil {
			t.Fatalf("Calibrate: %v", err)
		}
		rec.Reset()
	}
	return tur, rec, clk
}

func newTestPlan(t *testing.T, yawSpan, pitchSpan float64) *geometry.SweepPlan {
	t.Helper()
	plan, err := geometry.PlanSweep(geometry.SweepRequest{
		YawSpan: yawSpan, PitchSpan: pitchSpan, YawStep: 10, PitchStep: 10,
	}, aim.DefaultLimits())
	if err != nil {
		t.Fatalf("PlanSweep: %v", err)
	}
	return plan
}

func TestInitializePosition(t *testing.T) {
	tur, _, _ := newTestTurret(t, true)
	seq := NewSequence(tur)
	plan := newTestPlan(t, 20, 10)

	if err := seq.InitializePosition(context.Background(), plan); err != nil {
		t.Fatalf("InitializePosition: %v", err)
	}
	pos := tur.Position()
	if pos.Yaw != plan.StartYaw || pos.Pitch != plan.StartPitch {
		t.Errorf("position = %+v, want yaw %v pitch %v", pos, plan.StartYaw, plan.StartPitch)
	}
}

func TestRun_VisitsEveryPoint(t *testing.T) {
	cases := []struct {
		name      string
		yawSpan   float64
		pitchSpan float64
		want      int
	}{
		{"1x1", 0, 0, 1},
		{"2x2", 10, 10, 4},
		{"3x4", 20, 30, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tur, _, _ := newTestTurret(t, true)
			seq := NewSequence(tur)
			plan := newTestPlan(t, tc.yawSpan, tc.pitchSpan)

			n, err := seq.Run(context.Background(), SweepParams{Plan: plan})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if n != tc.want {
				t.Errorf("visited = %d, want %d", n, tc.want)
			}
			last := plan.Points[len(plan.Points)-1]
			if pos := tur.Position(); pos.Yaw != last.Yaw || pos.Pitch != last.Pitch {
				t.Errorf("final position = %+v, want %+v", pos, last)
			}
		})
	}
}

func TestRun_DwellAndFire(t *testing.T) {
	tur, rec, clk := newTestTurret(t, true)
	seq := NewSequence(tur)
	plan := newTestPlan(t, 10, 10)
	dwell := 750 * time.Millisecond

	n, err := seq.Run(context.Background(), SweepParams{Plan: plan, Dwell: dwell, Fire: true, Passes: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 8 {
		t.Errorf("visited = %d, want 8 (2 passes of 2x2)", n)
	}
	if got := rec.Count(command.Fire); got != 8 {
		t.Errorf("fire frames = %d, want 8", got)
	}
	dwells := 0
	for _, d := range clk.Sleeps() {
		if d == dwell {
			dwells++
		}
	}
	if dwells != 8 {
		t.Errorf("dwells = %d, want 8", dwells)
	}
}

func TestRun_RequiresCalibration(t *testing.T) {
	tur, rec, _ := newTestTurret(t, false)
	seq := NewSequence(tur)

	_, err := seq.Run(context.Background(), SweepParams{Plan: newTestPlan(t, 10, 10)})
	if !errors.Is(err, aim.ErrNotCalibrated) {
		t.Errorf("err = %v, want ErrNotCalibrated", err)
	}
	if len(rec.Sent()) != 0 {
		t.Errorf("sent %d frames before calibration", len(rec.Sent()))
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	tur, rec, _ := newTestTurret(t, true)
	seq := NewSequence(tur)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := seq.Run(ctx, SweepParams{Plan: newTestPlan(t, 100, 20)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("visited = %d, want 0", n)
	}
	if len(rec.Sent()) != 0 {
		t.Errorf("sent %d frames after cancellation", len(rec.Sent()))
	}
}

func TestRun_ContextCancelMidSequence(t *testing.T) {
	tur, _, clk := newTestTurret(t, true)
	seq := NewSequence(tur)
	plan := newTestPlan(t, 100, 20)
	dwell := time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dwells := 0
	clk.OnSleep = func(d time.Duration) {
		if d == dwell {
			dwells++
			if dwells == 3 {
				cancel()
			}
		}
	}

	n, err := seq.Run(ctx, SweepParams{Plan: plan, Dwell: dwell})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n != 3 {
		t.Errorf("visited = %d, want 3", n)
	}
}
