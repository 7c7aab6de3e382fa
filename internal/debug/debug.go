package debug

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (calibration, clamped targets)
	LevelLive    = 2 // Live info (moves, fire)
	LevelVerbose = 3 // Verbose (durations, interleave plans)
	LevelTrace   = 4 // Trace (every frame on the wire)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[zerolog.Logger]
)

func init() {
	nop := zerolog.Nop()
	logger.Store(&nop)
}

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (calibration, clamping, errors)
// 2 = live info (movements, fire)
// 3 = verbose (rates, durations, interleave plans)
// 4 = trace (frames, GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	if debugLevel > LevelOff {
		SetOutput(os.Stdout)
		return
	}
	nop := zerolog.Nop()
	logger.Store(&nop)
}

// SetOutput redirects log lines to w, e.g. stdout teed into the web broadcaster.
func SetOutput(w io.Writer) {
	// gating is done by Level, not by zerolog
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	l := zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05.000",
		NoColor:    w != os.Stdout,
	}).With().Timestamp().Str("app", "TurretGo").Logger()
	logger.Store(&l)
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func log() *zerolog.Logger {
	return logger.Load()
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		log().Info().Msgf(format, args...)
	}
}

// Warn prints a level 1 warning, e.g. a move issued while uncalibrated.
func Warn(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		log().Warn().Msgf(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if IsEnabled(LevelInfo) {
		log().Info().Msg("═══════════════════════════════════════")
		log().Info().Msgf("  %s", title)
		log().Info().Msg("═══════════════════════════════════════")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if IsEnabled(LevelInfo) {
		log().Info().Interface(name, value).Msg("value")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if IsEnabled(LevelLive) {
		log().Info().Str("stream", "live").Msgf(format, args...)
	}
}

// Move prints a timed axis movement (level 2).
func Move(axis string, d time.Duration, direction string) {
	if IsEnabled(LevelLive) {
		log().Info().
			Str("stream", "live").
			Str("axis", axis).
			Dur("duration", d).
			Str("direction", direction).
			Msg("move")
	}
}

// Column prints the start of a sweep column (level 2).
func Column(col, total int, direction string) {
	if IsEnabled(LevelLive) {
		log().Info().Str("stream", "live").Msgf("Column %d/%d (%s)", col, total, direction)
	}
}

// Waypoint prints a visited sweep point (level 2).
func Waypoint(col, row int, pitch, yaw float64) {
	if IsEnabled(LevelLive) {
		log().Info().
			Str("stream", "live").
			Int("col", col).
			Int("row", row).
			Float64("pitch", pitch).
			Float64("yaw", yaw).
			Msg("waypoint")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msgf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log().Debug().Msgf("  %s", name)
		log().Debug().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msgf("Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	if IsEnabled(LevelTrace) {
		log().Trace().Msgf(format, args...)
	}
}

// Frame prints a frame handed to the transport (level 4).
func Frame(transport string, frame fmt.Stringer) {
	if IsEnabled(LevelTrace) {
		log().Trace().Str("transport", transport).Stringer("frame", frame).Msg("tx")
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if IsEnabled(LevelTrace) {
		log().Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if IsEnabled(LevelInfo) {
		log().Error().Err(err).Msg("error")
	}
}
