// Package joystick reads a DualShock-style gamepad through the Linux joystick
// API (/dev/input/jsN).
package joystick

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

const DefaultDevice = "/dev/input/js0"

type EventType uint8

const (
	EventTypeButton = 1
	EventTypeAxis   = 2

	// The kernel sets this on the synthetic events that report the initial
	// state when the device is opened.
	eventTypeInit = 0x80
)

// Button numbers.  L2 and R2 are reported as axes as well.
const (
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonSquare   = 3
	ButtonL1       = 4
	ButtonR1       = 5
	ButtonL2       = 6
	ButtonR2       = 7
	ButtonShare    = 8
	ButtonOptions  = 9
	ButtonPS       = 10
	ButtonLStick   = 11
	ButtonRStick   = 12
)

// Axis numbers.  Sticks and d-pad read -32767 for up/left and +32767 for
// down/right; the triggers go from -32767 released to +32767 fully pressed.
const (
	AxisLStickX = 0
	AxisLStickY = 1
	AxisL2      = 2
	AxisRStickX = 3
	AxisRStickY = 4
	AxisR2      = 5
	AxisDPadX   = 6
	AxisDPadY   = 7

	maxButtons = 16
	maxAxes    = 8
)

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// Event is one js_event with its timestamp mapped onto the wall clock.
type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

// rawEvent mirrors struct js_event.
type rawEvent struct {
	Time   uint32 // ms, arbitrary epoch
	Value  int16
	Type   uint8
	Number uint8
}

type Joystick struct {
	device io.ReadCloser

	epochSet  bool
	epochMS   uint32
	epochWall time.Time
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open joystick %s", device)
	}
	return FromReader(f), nil
}

// FromReader reads js events from r.
func FromReader(r io.ReadCloser) *Joystick {
	return &Joystick{device: r}
}

// ReadEvent blocks for the next event.
func (j *Joystick) ReadEvent() (*Event, error) {
	var raw rawEvent
	if err := binary.Read(j.device, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	if !j.epochSet {
		j.epochSet = true
		j.epochMS = raw.Time
		j.epochWall = time.Now()
	}
	return &Event{
		Time:   j.epochWall.Add(time.Duration(raw.Time-j.epochMS) * time.Millisecond),
		Value:  raw.Value,
		Type:   EventType(raw.Type &^ eventTypeInit),
		Number: raw.Number,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}
