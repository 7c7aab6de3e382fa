package motion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// moves drops the auto-stop frames that follow every slice.
func moves(codes []command.Code) []command.Code {
	var out []command.Code
	for _, c := range codes {
		if c != command.Stop {
			out = append(out, c)
		}
	}
	return out
}

func TestPlanAim(t *testing.T) {
	cases := []struct {
		name      string
		yaw       float64
		pitch     float64
		primary   command.Code
		secondary command.Code
		ratio     int
		total     time.Duration
	}{
		{"yaw_longer", 1.0, 0.3, command.Right, command.Up, 4, time.Second},
		{"pitch_longer_negative", -0.2, -1.0, command.Down, command.Left, 5, time.Second},
		{"equal_prefers_yaw", 0.5, -0.5, command.Right, command.Down, 1, 500 * time.Millisecond},
		{"exact_ratio", -2.0, 1.0, command.Left, command.Up, 2, 2 * time.Second},
		{"pitch_only", 0, 5.0, command.Up, command.Stop, 0, 5 * time.Second},
		{"yaw_only_negative", -5.0, 0, command.Left, command.Stop, 0, 5 * time.Second},
		{"zeroish_axis", 1.0, 0.00005, command.Right, command.Stop, 0, time.Second},
		{"both_zero", 0, -0.00001, command.Stop, command.Stop, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PlanAim(tc.yaw, tc.pitch)
			assert.Equal(t, tc.primary, p.Primary, "primary")
			assert.Equal(t, tc.secondary, p.Secondary, "secondary")
			assert.Equal(t, tc.ratio, p.Ratio, "ratio")
			assert.Equal(t, tc.total, p.Total, "total")
		})
	}
}

func TestAim_SingleAxisIsNotInterleaved(t *testing.T) {
	for _, yaw := range []float64{5.0, -5.0} {
		t.Run(fmt.Sprintf("yaw_%g", yaw), func(t *testing.T) {
			exec, rec, clk := newTestExecutor(Options{})
			iv := NewInterleaver(exec, 0)

			plan, err := iv.Aim(context.Background(), yaw, 0)
			require.NoError(t, err)

			want := command.Right
			if yaw < 0 {
				want = command.Left
			}
			assert.False(t, plan.Interleaved())
			assert.Equal(t, 100, plan.PrimarySlices)
			assert.Equal(t, 0, plan.SecondarySlices)
			assert.Equal(t, 100, rec.Count(want))
			assert.Equal(t, 100, rec.Count(command.Stop))
			assert.Len(t, rec.Codes(), 200, "only the moving axis and its auto-stops")
			for _, d := range clk.Sleeps() {
				assert.Equal(t, DefaultSlice, d)
			}
			assert.Equal(t, 5*time.Second, plan.Elapsed)
		})
	}
}

func TestAim_BothZeroSendsNothing(t *testing.T) {
	exec, rec, _ := newTestExecutor(Options{})
	iv := NewInterleaver(exec, 0)

	plan, err := iv.Aim(context.Background(), 0, 0.00001)
	require.NoError(t, err)
	assert.Empty(t, rec.Sent())
	assert.Equal(t, 0, plan.PrimarySlices)
}

func TestAim_BatchOrder(t *testing.T) {
	exec, rec, _ := newTestExecutor(Options{})
	iv := NewInterleaver(exec, 0)

	// ratio ceil(0.5/0.2)=3, batch 4 slices = 200ms, 3 batches reach 600ms >= 500ms
	plan, err := iv.Aim(context.Background(), -0.2, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Ratio)
	batch := []command.Code{command.Up, command.Up, command.Up, command.Left}
	var want []command.Code
	for i := 0; i < 3; i++ {
		want = append(want, batch...)
	}
	assert.Equal(t, want, moves(rec.Codes()))
	codes := rec.Codes()
	for i := 1; i < len(codes); i += 2 {
		assert.Equal(t, command.Stop, codes[i], "every slice is followed by its own stop")
	}
	assert.Equal(t, command.Stop, codes[len(codes)-1])
	assert.Equal(t, 600*time.Millisecond, plan.Elapsed)
}

func TestAim_SliceRatioAndOvershoot(t *testing.T) {
	for _, yaw := range []float64{-3.0, -1.1, -0.25, 0.07, 0.4, 1.0, 2.5} {
		for _, pitch := range []float64{-2.0, -0.6, -0.05, 0.3, 0.9, 1.7} {
			t.Run(fmt.Sprintf("yaw_%g_pitch_%g", yaw, pitch), func(t *testing.T) {
				exec, _, _ := newTestExecutor(Options{})
				iv := NewInterleaver(exec, 0)

				plan, err := iv.Aim(context.Background(), yaw, pitch)
				require.NoError(t, err)
				require.True(t, plan.Interleaved())

				assert.GreaterOrEqual(t, plan.PrimarySlices, plan.Ratio*plan.SecondarySlices-1)
				assert.GreaterOrEqual(t, plan.Elapsed, plan.Total)
				overshoot := time.Duration(plan.Ratio+1) * DefaultSlice
				assert.Less(t, plan.Elapsed, plan.Total+overshoot)
			})
		}
	}
}

func TestAim_TransportFailureAborts(t *testing.T) {
	exec, rec, _ := newTestExecutor(Options{})
	iv := NewInterleaver(exec, 0)
	rights := 0
	rec.FailWith(func(f command.Frame) error {
		if f.Code() == command.Right {
			rights++
			if rights == 3 {
				return errors.New("cable pulled")
			}
		}
		return nil
	})

	plan, err := iv.Aim(context.Background(), 2.0, 0)

	assert.True(t, transport.IsError(err))
	assert.Equal(t, 2, plan.PrimarySlices)
	codes := rec.Codes()
	assert.Equal(t, command.Stop, codes[len(codes)-1], "safety stop after the failed slice")
}

func TestAim_EstopBetweenSlices(t *testing.T) {
	exec, rec, clk := newTestExecutor(Options{})
	iv := NewInterleaver(exec, 0)
	sleeps := 0
	clk.OnSleep = func(time.Duration) {
		sleeps++
		if sleeps == 5 {
			_ = exec.Estop()
		}
	}

	plan, err := iv.Aim(context.Background(), 1.0, 0.5)

	assert.ErrorIs(t, err, ErrEstop)
	assert.Equal(t, 4, plan.PrimarySlices+plan.SecondarySlices, "the interrupted slice is not counted")
	assert.Equal(t, command.Stop, exec.Last())
	assert.Equal(t, 10, len(moves(rec.Codes()))+rec.Count(command.Stop)-1)
}

func TestAim_RealClockSliceTolerance(t *testing.T) {
	if testing.Short() {
		t.Skip("wall-clock timing test")
	}
	rec := transport.NewRecorder(nil)
	exec := NewExecutor(rec, Options{})
	iv := NewInterleaver(exec, 0)

	plan, err := iv.Aim(context.Background(), 0.25, 0)
	require.NoError(t, err)
	require.Equal(t, 5, plan.PrimarySlices)

	sent := rec.Sent()
	require.Len(t, sent, 10)
	var held time.Duration
	for i := 0; i < len(sent); i += 2 {
		held += sent[i+1].At.Sub(sent[i].At)
	}
	mean := held / time.Duration(plan.PrimarySlices)
	assert.GreaterOrEqual(t, mean, DefaultSlice)
	assert.LessOrEqual(t, mean, DefaultSlice+SliceTolerance)
}
