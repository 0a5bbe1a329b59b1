package drive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMixZero(t *testing.T) {
	assert.Equal(t, WheelPowers{}, Mix(Vector{}, 1))
}

func TestMixScalesToCap(t *testing.T) {
	w := Mix(Vector{Forward: 1, Strafe: 1, Turn: 1}, 0.7)
	assert.InDelta(t, 0.7, w.FrontLeft, 1e-9)
	assert.InDelta(t, -0.7/3, w.FrontRight, 1e-9)
	assert.InDelta(t, 0.7/3, w.BackLeft, 1e-9)
	assert.InDelta(t, 0.7/3, w.BackRight, 1e-9)

	// Ratios are the same as the raw speeds {3, -1, 1, 1}.
	assert.InDelta(t, -3, w.FrontLeft/w.FrontRight, 1e-9)
	assert.InDelta(t, -1, w.FrontRight/w.BackLeft, 1e-9)
	assert.InDelta(t, 1, w.BackLeft/w.BackRight, 1e-9)
}

func TestMixBelowCapUnscaled(t *testing.T) {
	w := Mix(Vector{Forward: 0.2, Strafe: 0.1}, 0.7)
	assert.InDelta(t, 0.3, w.FrontLeft, 1e-9)
	assert.InDelta(t, 0.1, w.FrontRight, 1e-9)
	assert.InDelta(t, 0.1, w.BackLeft, 1e-9)
	assert.InDelta(t, 0.3, w.BackRight, 1e-9)
}

func TestMixDirections(t *testing.T) {
	for _, tc := range []struct {
		name     string
		in       Vector
		expected WheelPowers
	}{
		{"forward", Vector{Forward: 0.5}, WheelPowers{0.5, 0.5, 0.5, 0.5}},
		{"strafe", Vector{Strafe: 0.5}, WheelPowers{0.5, -0.5, -0.5, 0.5}},
		{"turn", Vector{Turn: 0.5}, WheelPowers{0.5, -0.5, 0.5, -0.5}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Mix(tc.in, 1))
		})
	}
}

func TestMixCapBounds(t *testing.T) {
	in := Vector{Forward: -3, Strafe: 2, Turn: 0.5}
	for _, limit := range []float64{0.1, 0.3, 0.7, 1, 2} {
		w := Mix(in, limit)
		assert.LessOrEqual(t, w.Max(), math.Min(limit, 1)+1e-12, "cap %v", limit)
	}
	assert.Equal(t, WheelPowers{}, Mix(in, 0))
	assert.Equal(t, WheelPowers{}, Mix(in, -1))
}

func TestFieldCentric(t *testing.T) {
	// Facing down the field, the sticks map straight through.
	forward, strafe := FieldCentric(0.25, 1, 0)
	assert.InDelta(t, 1, forward, 1e-9)
	assert.InDelta(t, 0.25, strafe, 1e-9)

	// Turned a quarter to the right, pushing the stick forward is a strafe left.
	forward, strafe = FieldCentric(0, 1, math.Pi/2)
	assert.InDelta(t, 0, forward, 1e-9)
	assert.InDelta(t, -1, strafe, 1e-9)
}

func TestSpeedSelectorEdgeTriggered(t *testing.T) {
	s := NewSpeedSelector(DefaultNormalSpeed, DefaultSlowSpeed)
	assert.Equal(t, DefaultNormalSpeed, s.MaxSpeed())

	assert.True(t, s.OnButton(true))
	assert.False(t, s.OnButton(true), "holding the button should not toggle again")
	assert.True(t, s.SlowMode())
	assert.Equal(t, DefaultSlowSpeed, s.MaxSpeed())

	assert.False(t, s.OnButton(false))
	assert.True(t, s.OnButton(true))
	assert.False(t, s.SlowMode())
	assert.Equal(t, DefaultNormalSpeed, s.MaxSpeed())
}

func TestApplyExpo(t *testing.T) {
	assert.InDelta(t, 0.25, ApplyExpo(0.5, 2), 1e-9)
	assert.InDelta(t, -0.25, ApplyExpo(-0.5, 2), 1e-9)
	assert.Equal(t, 1.0, ApplyExpo(1, 1.6))
}
