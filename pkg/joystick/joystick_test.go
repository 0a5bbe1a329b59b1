package joystick

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, events ...rawEvent) io.ReadCloser {
	var buf bytes.Buffer
	for _, e := range events {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, e))
	}
	return ioutil.NopCloser(&buf)
}

func TestReadEvents(t *testing.T) {
	j := FromReader(encode(t,
		rawEvent{Time: 1000, Value: 1, Type: EventTypeButton | 0x80, Number: ButtonPS},
		rawEvent{Time: 1250, Value: -32767, Type: EventTypeAxis, Number: AxisLStickY},
	))
	defer j.Close()

	e1, err := j.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventType(EventTypeButton), e1.Type, "init flag should be masked off")
	assert.Equal(t, uint8(ButtonPS), e1.Number)
	assert.Equal(t, int16(1), e1.Value)

	e2, err := j.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventType(EventTypeAxis), e2.Type)
	assert.Equal(t, 250*time.Millisecond, e2.Time.Sub(e1.Time))
	assert.Equal(t, "axis(1)=-32767", e2.String())

	_, err = j.ReadEvent()
	assert.Equal(t, io.EOF, err)
}

func TestGamepad(t *testing.T) {
	var g Gamepad
	assert.False(t, g.Apply(&Event{Type: EventTypeAxis, Number: AxisLStickY, Value: -32767}))
	assert.False(t, g.Apply(&Event{Type: EventTypeAxis, Number: AxisLStickX, Value: 16384}))
	assert.False(t, g.Apply(&Event{Type: EventTypeAxis, Number: AxisRStickY, Value: -32768}))
	x, y := g.LeftStick()
	assert.InDelta(t, 0.5, x, 0.001)
	assert.Equal(t, 1.0, y)
	_, ry := g.RightStick()
	assert.Equal(t, 1.0, ry, "-32768 clamps")

	assert.True(t, g.Apply(&Event{Type: EventTypeButton, Number: ButtonL2, Value: 1}))
	assert.False(t, g.Apply(&Event{Type: EventTypeButton, Number: ButtonL2, Value: 1}), "repeat is not a press")
	assert.True(t, g.Button(ButtonL2))
	assert.False(t, g.Apply(&Event{Type: EventTypeButton, Number: ButtonL2, Value: 0}))
	assert.False(t, g.Button(ButtonL2))

	// Out of range numbers are ignored.
	assert.False(t, g.Apply(&Event{Type: EventTypeButton, Number: 200, Value: 1}))
	assert.False(t, g.Button(200))
	assert.Equal(t, 0.0, g.Axis(200))
}
