package joystick

import "sync"

const axisMax = 32767

// Gamepad accumulates events into the current controller state.  It's safe
// to call from multiple goroutines.
type Gamepad struct {
	lock    sync.Mutex
	axes    [maxAxes]int16
	buttons [maxButtons]bool
}

// Apply folds an event into the state and returns true if it was a button
// going down.
func (g *Gamepad) Apply(e *Event) (pressed bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	switch e.Type {
	case EventTypeAxis:
		if int(e.Number) < maxAxes {
			g.axes[e.Number] = e.Value
		}
	case EventTypeButton:
		if int(e.Number) < maxButtons {
			down := e.Value != 0
			pressed = down && !g.buttons[e.Number]
			g.buttons[e.Number] = down
		}
	}
	return
}

func (g *Gamepad) Button(n uint8) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	if int(n) >= maxButtons {
		return false
	}
	return g.buttons[n]
}

// Axis returns the axis value scaled to [-1, 1], raw sign.
func (g *Gamepad) Axis(n uint8) float64 {
	g.lock.Lock()
	defer g.lock.Unlock()
	if int(n) >= maxAxes {
		return 0
	}
	return normalise(g.axes[n])
}

// LeftStick returns (x, y) with x positive right and y positive up.
func (g *Gamepad) LeftStick() (x, y float64) {
	return g.Axis(AxisLStickX), -g.Axis(AxisLStickY)
}

// RightStick returns (x, y) with x positive right and y positive up.
func (g *Gamepad) RightStick() (x, y float64) {
	return g.Axis(AxisRStickX), -g.Axis(AxisRStickY)
}

func normalise(v int16) float64 {
	f := float64(v) / axisMax
	if f < -1 {
		return -1
	}
	return f
}
