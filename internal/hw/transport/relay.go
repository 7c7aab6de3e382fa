package transport

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/hw/gpio"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
)

// RelayPins maps each code bit to a BCM pin driving a relay.
// A zero pin means the line is not wired.
type RelayPins struct {
	Down  int `yaml:"down_pin"`
	Up    int `yaml:"up_pin"`
	Left  int `yaml:"left_pin"`
	Right int `yaml:"right_pin"`
	Fire  int `yaml:"fire_pin"`
}

func (p RelayPins) lines() []relayLine {
	return []relayLine{
		{command.Down, p.Down},
		{command.Up, p.Up},
		{command.Left, p.Left},
		{command.Right, p.Right},
		{command.Fire, p.Fire},
	}
}

type relayLine struct {
	code command.Code
	pin  int
}

// Relay drives a launcher whose motor lines are switched by GPIO relays.
// Each frame sets every wired line: high when its bit is present, low otherwise,
// so Stop releases all relays.
type Relay struct {
	mu         sync.Mutex
	gpio       gpio.Driver
	lines      []relayLine
	ownsDriver bool
}

// OpenRelay creates its own GPIO driver (mock or go-rpio) and owns it.
func OpenRelay(pins RelayPins, mock bool) (*Relay, error) {
	drv, err := gpio.NewDriver(mock)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	r, err := NewRelay(drv, pins)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	r.ownsDriver = true
	return r, nil
}

// NewRelay sets up all wired lines as low outputs on an existing driver.
func NewRelay(g gpio.Driver, pins RelayPins) (*Relay, error) {
	r := &Relay{gpio: g}
	seen := make(map[int]command.Code)
	for _, l := range pins.lines() {
		if l.pin <= 0 {
			continue
		}
		if other, dup := seen[l.pin]; dup {
			return nil, fmt.Errorf("relay: pin %d used for both %s and %s", l.pin, other, l.code)
		}
		seen[l.pin] = l.code
		if err := g.SetupPin(l.pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("relay: setup pin %d: %w", l.pin, err)
		}
		if err := g.WritePin(l.pin, gpio.Low); err != nil {
			return nil, fmt.Errorf("relay: release pin %d: %w", l.pin, err)
		}
		r.lines = append(r.lines, l)
	}
	if len(r.lines) == 0 {
		return nil, fmt.Errorf("relay: no pins configured")
	}
	return r, nil
}

func (r *Relay) SendFrame(f command.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	debug.Frame("gpio", f)
	if !f.IsMove() {
		// power is hard-wired on relay boards
		return nil
	}
	code := f.Code()
	if code != command.Stop {
		if err := r.checkWired(code); err != nil {
			return err
		}
	}

	// release first so two directions are never energized together by accident
	for _, l := range r.lines {
		if code&l.code == 0 {
			if err := r.gpio.WritePin(l.pin, gpio.Low); err != nil {
				return err
			}
		}
	}
	for _, l := range r.lines {
		if code&l.code != 0 {
			if err := r.gpio.WritePin(l.pin, gpio.High); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Relay) checkWired(code command.Code) error {
	var wired command.Code
	for _, l := range r.lines {
		wired |= l.code
	}
	if code&^wired != 0 {
		return fmt.Errorf("relay: no pin wired for %s", code&^wired)
	}
	return nil
}

// Close releases all relays and, when owned, the GPIO driver.
func (r *Relay) Close() error {
	if err := r.SendFrame(command.MoveFrame(command.Stop)); err != nil {
		debug.Error(fmt.Errorf("relay: release: %w", err))
	}
	if r.ownsDriver {
		return r.gpio.Close()
	}
	return nil
}
