package command

// State is what the launcher is believed to be doing, derived from the last
// transmitted code. Implementations: Stopped, Moving, Firing, Homing.
type State interface {
	Name() string
	isState()
}

type Stopped struct{}

// Moving carries the single direction being driven.
type Moving struct {
	Direction Code
}

type Firing struct{}

// Homing carries the calibration composite driving both axes to end-stops.
type Homing struct {
	Composite Code
}

func (Stopped) Name() string { return "stopped" }
func (Moving) Name() string  { return "moving" }
func (Firing) Name() string  { return "firing" }
func (Homing) Name() string  { return "homing" }

func (Stopped) isState() {}
func (Moving) isState()  {}
func (Firing) isState()  {}
func (Homing) isState()  {}

// StateOf maps a transmitted code onto the state it puts the launcher in.
// Unknown codes map to Stopped.
func StateOf(c Code) State {
	switch {
	case c == Fire:
		return Firing{}
	case c.IsDirection():
		return Moving{Direction: c}
	case c.IsComposite():
		return Homing{Composite: c}
	default:
		return Stopped{}
	}
}
