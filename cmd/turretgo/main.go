package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cjeanneret/TurretGo/internal/config"
	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/motion"
	"github.com/cjeanneret/TurretGo/internal/metrics"
	"github.com/cjeanneret/TurretGo/internal/shell"
	"github.com/cjeanneret/TurretGo/internal/web"
)

var errNoMode = errors.New("nothing to do: give a command, -shell or -web")

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	interactive := flag.Bool("shell", false, "start the interactive console")
	transportKind := flag.String("transport", "", "override device.transport (hid, serial, gpio, mock)")
	debugLevel := flag.Int("debug", -1, "override defaults.debug_level (0-4)")
	flag.Usage = usage
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*cfgPath, *transportKind, *debugLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Transport", cfg.Device.Transport)

	port := webPort.port()
	if port == 0 {
		port = cfg.Web.Port
	}
	if err := run(ctx, cfg, port, *interactive, flag.Args()); err != nil {
		if errors.Is(err, errNoMode) {
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("turretgo")
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] [command [args...]]

Commands (one-shot or in -shell):
  up|down|left|right [seconds]   move one direction, then stop
  stop | fire
  aim <yaw_s> <pitch_s>          relative move in seconds, both axes at once
  pitch <deg> | yaw <deg>        absolute move on one axis
  point <pitch> <yaw>            absolute move on both axes
  nudge <yaw> <pitch>            relative move in degrees
  calibrate [opposite] [center]  home into the end-stops
  center | status
  patrol [yaw_span pitch_span] [passes]

Flags:
`, filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

// loadConfig reads the file, then the environment, then the flag overrides.
func loadConfig(path, transportKind string, debugLevel int) (*config.Config, error) {
	if err := config.ValidateConfigPath(path); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if transportKind != "" {
		cfg.Device.Transport = transportKind
	}
	if debugLevel >= 0 {
		cfg.Defaults.DebugLevel = debugLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run opens the link, builds the controller and dispatches to the selected mode.
func run(ctx context.Context, cfg *config.Config, port int, interactive bool, args []string) (err error) {
	if port == 0 && !interactive && len(args) == 0 {
		return errNoMode
	}

	debug.Step(1, "Opening "+cfg.Device.Transport+" transport")
	tx, err := transport.Open(cfg.TransportConfig())
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	rec, err := metrics.New(nil)
	if err != nil {
		tx.Close()
		return fmt.Errorf("init metrics: %w", err)
	}

	exec := motion.NewExecutor(tx, motion.Options{
		FirePulse: cfg.FirePulse(),
		Metrics:   rec,
	})
	defer func() {
		if serr := shutdown(exec, tx); serr != nil && err == nil {
			err = serr
		}
	}()

	debug.Step(2, "Powering launcher")
	if err := exec.Power(true); err != nil {
		return fmt.Errorf("power on: %w", err)
	}

	debug.Step(3, "Creating turret controller")
	turret, err := aim.New(exec, motion.NewInterleaver(exec, cfg.Slice()), cfg.AimOptions())
	if err != nil {
		return err
	}
	debug.PrintStruct("Limits", cfg.Limits)
	pitchRate, yawRate := turret.Rates()
	debug.Value("Pitch rate (s/deg)", pitchRate)
	debug.Value("Yaw rate (s/deg)", yawRate)

	switch {
	case port > 0:
		return serve(ctx, cfg, port, turret, interactive)
	case interactive:
		sh := shell.New(ctx, turret, patrolDefaults(cfg))
		go func() {
			<-ctx.Done()
			sh.Close()
		}()
		sh.Run()
		return nil
	default:
		return shell.New(ctx, turret, patrolDefaults(cfg)).Process(args...)
	}
}

// serve runs the web API, and the console alongside it when interactive.
func serve(ctx context.Context, cfg *config.Config, port int, turret *aim.Turret, interactive bool) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, turret, configView(cfg))
	if err != nil {
		return err
	}
	if !interactive {
		return srv.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sh := shell.New(ctx, turret, patrolDefaults(cfg))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	go func() {
		<-ctx.Done()
		sh.Close()
	}()
	sh.Run()
	cancel()
	return <-errCh
}

// shutdown stops the launcher and releases the link.
func shutdown(exec *motion.Executor, tx transport.Sender) error {
	debug.Section("Shutdown")
	stopErr := exec.Estop()
	if err := tx.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return stopErr
}

func patrolDefaults(cfg *config.Config) shell.PatrolDefaults {
	return shell.PatrolDefaults{
		Sweep: cfg.SweepRequest(),
		Dwell: cfg.Dwell(),
		Fire:  cfg.Defaults.Patrol.Fire,
	}
}

// configView is the configuration exposed by GET /configuration.
func configView(cfg *config.Config) web.ConfigView {
	v := web.ConfigView{
		Device:            cfg.Device.Name,
		Transport:         cfg.Device.Transport,
		Limits:            cfg.Limits,
		SliceMs:           cfg.Motion.SliceMs,
		FirePulseMs:       cfg.Motion.FirePulseMs,
		SettleMarginMs:    cfg.Motion.SettleMarginMs,
		AllowUncalibrated: cfg.Motion.AllowUncalibrated,
	}
	v.Patrol.SweepRequest = cfg.SweepRequest()
	v.Patrol.DwellMs = cfg.Defaults.Patrol.DwellMs
	v.Patrol.Fire = cfg.Defaults.Patrol.Fire
	v.Patrol.Passes = 1
	return v
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
