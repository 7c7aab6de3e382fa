// Package shell provides the interactive turret console and the one-shot
// command line built on the same command set.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell/v2"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/geometry"
	"github.com/cjeanneret/TurretGo/internal/logic/motion"
	"github.com/cjeanneret/TurretGo/internal/logic/patrol"
)

// ErrUsage is returned for missing or malformed arguments.
var ErrUsage = errors.New("usage")

// PatrolDefaults is the sweep run by "patrol" when no span is given.
type PatrolDefaults struct {
	Sweep geometry.SweepRequest
	Dwell time.Duration
	Fire  bool
}

// Shell drives one turret from typed commands.
type Shell struct {
	sh      *ishell.Shell
	ctx     context.Context
	turret  *aim.Turret
	patrol  PatrolDefaults
	lastErr error
}

// New builds the command set. Motions run under ctx.
func New(ctx context.Context, t *aim.Turret, defaults PatrolDefaults) *Shell {
	s := &Shell{
		sh:     ishell.New(),
		ctx:    ctx,
		turret: t,
		patrol: defaults,
	}
	s.sh.SetPrompt("turret> ")
	s.register()
	return s
}

// SetOut redirects command output.
func (s *Shell) SetOut(w io.Writer) {
	s.sh.SetOut(w)
}

// Process runs a single command line and returns its error, if any.
func (s *Shell) Process(args ...string) error {
	s.lastErr = nil
	if err := s.sh.Process(args...); err != nil {
		return err
	}
	return s.lastErr
}

// Run starts the interactive loop and returns when the user exits.
func (s *Shell) Run() {
	s.sh.Println("Turret console. Type 'help' for commands, 'stop' to halt.")
	s.sh.Run()
}

// Close stops the interactive loop.
func (s *Shell) Close() {
	s.sh.Close()
}

// action wraps a command so its error is printed and kept for Process.
func (s *Shell) action(fn func(c *ishell.Context) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(c); err != nil {
			s.lastErr = err
			c.Err(err)
		}
	}
}

func (s *Shell) register() {
	exec := s.turret.Executor()

	for _, dir := range []struct {
		name string
		fn   func(context.Context, time.Duration) error
	}{
		{"up", exec.Up},
		{"down", exec.Down},
		{"left", exec.Left},
		{"right", exec.Right},
	} {
		dir := dir
		s.sh.AddCmd(&ishell.Cmd{
			Name: dir.name,
			Help: fmt.Sprintf("%s [seconds] - move %s, then stop (default %v)", dir.name, dir.name, motion.DefaultDuration),
			Func: s.action(func(c *ishell.Context) error {
				d, err := optionalSeconds(c.Args)
				if err != nil {
					return err
				}
				return dir.fn(s.ctx, d)
			}),
		})
	}

	s.sh.AddCmd(&ishell.Cmd{
		Name:    "stop",
		Aliases: []string{"estop"},
		Help:    "stop - halt immediately",
		Func: s.action(func(c *ishell.Context) error {
			return s.turret.Estop()
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name: "fire",
		Help: "fire - launch one missile",
		Func: s.action(func(c *ishell.Context) error {
			return exec.Fire(s.ctx)
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name:     "aim",
		Help:     "aim <yaw_s> <pitch_s> - relative move in signed seconds, both axes at once",
		LongHelp: "Positive yaw turns right, positive pitch raises. The longer axis is sliced\nand the shorter one interleaved so both finish together.",
		Func: s.action(func(c *ishell.Context) error {
			v, err := floats(c.Args, 2, "aim <yaw_s> <pitch_s>")
			if err != nil {
				return err
			}
			plan, err := s.turret.Interleaver().Aim(s.ctx, v[0], v[1])
			if err != nil {
				return err
			}
			c.Printf("%d/%d slices in %v\n", plan.PrimarySlices, plan.SecondarySlices, plan.Elapsed)
			return nil
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name: "pitch",
		Help: "pitch <degrees> - absolute pitch",
		Func: s.action(func(c *ishell.Context) error {
			v, err := floats(c.Args, 1, "pitch <degrees>")
			if err != nil {
				return err
			}
			mv, err := s.turret.Pitch(s.ctx, v[0])
			printMoves(c, mv)
			return err
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name: "yaw",
		Help: "yaw <degrees> - absolute yaw",
		Func: s.action(func(c *ishell.Context) error {
			v, err := floats(c.Args, 1, "yaw <degrees>")
			if err != nil {
				return err
			}
			mv, err := s.turret.Yaw(s.ctx, v[0])
			printMoves(c, mv)
			return err
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name: "point",
		Help: "point <pitch> <yaw> - absolute position in degrees",
		Func: s.action(func(c *ishell.Context) error {
			v, err := floats(c.Args, 2, "point <pitch> <yaw>")
			if err != nil {
				return err
			}
			moves, err := s.turret.Point(s.ctx, v[0], v[1])
			printMoves(c, moves...)
			return err
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name: "nudge",
		Help: "nudge <yaw> <pitch> - relative move in degrees, both axes at once",
		Func: s.action(func(c *ishell.Context) error {
			v, err := floats(c.Args, 2, "nudge <yaw> <pitch>")
			if err != nil {
				return err
			}
			rel, err := s.turret.Nudge(s.ctx, v[0], v[1])
			printMoves(c, rel.Yaw, rel.Pitch)
			return err
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name:     "calibrate",
		Aliases:  []string{"home"},
		Help:     "calibrate [opposite] [center] - drive into the end-stops and reset the position",
		LongHelp: "Without arguments the turret homes to minimum pitch and yaw.\n'opposite' homes to the maximum instead; 'center' points to (0, 0) afterwards.",
		Func: s.action(func(c *ishell.Context) error {
			var opts aim.CalibrateOptions
			for _, a := range c.Args {
				switch strings.ToLower(a) {
				case "opposite", "max":
					opts.Opposite = true
				case "center", "centre":
					opts.AndCenter = true
				default:
					return fmt.Errorf("%w: calibrate [opposite] [center]", ErrUsage)
				}
			}
			if err := s.turret.Calibrate(s.ctx, opts); err != nil {
				return err
			}
			c.Println(s.turret.Calibration())
			return nil
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name: "center",
		Help: "center - point to (0, 0)",
		Func: s.action(func(c *ishell.Context) error {
			return s.turret.Center(s.ctx)
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name:    "status",
		Aliases: []string{"pos"},
		Help:    "status - position, calibration and link state",
		Func: s.action(func(c *ishell.Context) error {
			printSnapshot(c, s.turret.Snapshot())
			return nil
		}),
	})

	s.sh.AddCmd(&ishell.Cmd{
		Name:     "patrol",
		Help:     "patrol [yaw_span pitch_span] [passes] - serpentine sweep around the origin",
		LongHelp: "Without arguments the configured sweep is used. Requires calibration.",
		Func: s.action(func(c *ishell.Context) error {
			return s.runPatrol(c)
		}),
	})
}

func (s *Shell) runPatrol(c *ishell.Context) error {
	req := s.patrol.Sweep
	passes := 1
	switch len(c.Args) {
	case 0:
	case 1, 2, 3:
		if len(c.Args) >= 2 {
			v, err := floats(c.Args[:2], 2, "patrol [yaw_span pitch_span] [passes]")
			if err != nil {
				return err
			}
			req.YawSpan, req.PitchSpan = v[0], v[1]
		}
		if len(c.Args)%2 == 1 {
			n, err := strconv.Atoi(c.Args[len(c.Args)-1])
			if err != nil || n < 1 {
				return fmt.Errorf("%w: passes must be a positive integer", ErrUsage)
			}
			passes = n
		}
	default:
		return fmt.Errorf("%w: patrol [yaw_span pitch_span] [passes]", ErrUsage)
	}

	plan, err := geometry.PlanSweep(req, s.turret.Limits())
	if err != nil {
		return err
	}
	c.Printf("Patrol: %d columns x %d rows, %d pass(es)\n", plan.Columns, plan.Rows, passes)
	n, err := patrol.NewSequence(s.turret).Run(s.ctx, patrol.SweepParams{
		Plan:   plan,
		Dwell:  s.patrol.Dwell,
		Fire:   s.patrol.Fire,
		Passes: passes,
	})
	c.Printf("Visited %d points\n", n)
	return err
}

// optionalSeconds parses an optional duration argument; 0 means the default.
func optionalSeconds(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return 0, nil
	}
	v, err := floats(args[:1], 1, "<direction> [seconds]")
	if err != nil {
		return 0, err
	}
	if v[0] < 0 {
		return 0, fmt.Errorf("%w: seconds must not be negative", ErrUsage)
	}
	return motion.Seconds(v[0]), nil
}

// floats parses exactly n finite numbers.
func floats(args []string, n int, usage string) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a number (%s)", ErrUsage, a, usage)
		}
		out[i] = v
	}
	return out, nil
}

func printMoves(c *ishell.Context, moves ...aim.Move) {
	for _, mv := range moves {
		if !mv.Moved() {
			continue
		}
		note := ""
		if mv.Clamped {
			note = fmt.Sprintf(" (clamped from %.2f)", mv.Requested)
		}
		c.Printf("%s -> %.2f%s in %v\n", mv.Axis, mv.Target, note, mv.Duration.Round(time.Millisecond))
	}
}

func printSnapshot(c *ishell.Context, snap aim.Snapshot) {
	c.Printf("%s: pitch %.2f yaw %.2f\n", snap.Name, snap.Pitch, snap.Yaw)
	if snap.Calibrated {
		c.Printf("calibrated at %s extreme, %s\n", snap.Extreme, snap.CalibratedAt.Format(time.RFC3339))
	} else {
		c.Println("not calibrated")
	}
	c.Printf("state %s, last command %s\n", snap.State, snap.Last)
	debug.PrintStruct("Snapshot", snap)
}
