// Package metrics exposes OpenTelemetry instruments for the turret:
// frames put on the wire, frames the link rejected and time spent moving.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

const instrumentationName = "github.com/cjeanneret/TurretGo/internal/metrics"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Recorder holds the turret instruments. A nil *Recorder records nothing.
type Recorder struct {
	framesSent   metric.Int64Counter
	framesFailed metric.Int64Counter
	motion       metric.Float64Histogram
}

// New registers the instruments on m, or on the global meter provider when m is nil.
func New(m metric.Meter) (*Recorder, error) {
	if m == nil {
		m = meter()
	}
	sent, err := m.Int64Counter("turret.frames.sent",
		metric.WithDescription("Frames accepted by the transport"))
	if err != nil {
		return nil, fmt.Errorf("create frames.sent counter: %w", err)
	}
	failed, err := m.Int64Counter("turret.frames.failed",
		metric.WithDescription("Frames the transport failed to send"))
	if err != nil {
		return nil, fmt.Errorf("create frames.failed counter: %w", err)
	}
	motion, err := m.Float64Histogram("turret.motion.seconds",
		metric.WithDescription("Time spent driving the launcher per motion"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create motion histogram: %w", err)
	}
	return &Recorder{framesSent: sent, framesFailed: failed, motion: motion}, nil
}

func frameAttrs(f command.Frame) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.Int("opcode", int(f.Opcode())),
		attribute.String("code", f.Code().String()),
	)
}

func (r *Recorder) FrameSent(ctx context.Context, f command.Frame) {
	if r == nil {
		return
	}
	r.framesSent.Add(ctx, 1, frameAttrs(f))
}

func (r *Recorder) FrameFailed(ctx context.Context, f command.Frame) {
	if r == nil {
		return
	}
	r.framesFailed.Add(ctx, 1, frameAttrs(f))
}

// Motion records d under kind, the command that was held (up, left, ...).
func (r *Recorder) Motion(ctx context.Context, kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.motion.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

// Instrument wraps s so every frame is counted.
func (r *Recorder) Instrument(s transport.Sender) transport.Sender {
	if r == nil {
		return s
	}
	return &instrumented{Sender: s, rec: r}
}

type instrumented struct {
	transport.Sender
	rec *Recorder
}

func (i *instrumented) SendFrame(f command.Frame) error {
	if err := i.Sender.SendFrame(f); err != nil {
		i.rec.FrameFailed(context.Background(), f)
		return err
	}
	i.rec.FrameSent(context.Background(), f)
	return nil
}
