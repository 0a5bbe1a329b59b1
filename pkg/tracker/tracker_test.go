package tracker

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

const fullSpeedMMPerSec = chassis.MaxWheelRPS * chassis.WheelCircumMM

func newSim(t *testing.T, opts ...hardware.SimOption) *hardware.Sim {
	return hardware.NewSim(zaptest.NewLogger(t).Sugar(), opts...)
}

func drive1s(t *testing.T, sim *hardware.Sim, v drive.Vector) {
	require.NoError(t, sim.SetWheelPowers(drive.Mix(v, 1)))
	sim.Advance(time.Second)
	sim.StopMotors()
}

func TestUnsetUntilFirstUpdate(t *testing.T) {
	tr := New(newSim(t), WithLogger(zaptest.NewLogger(t).Sugar()))
	_, ok := tr.CurrentPose()
	assert.False(t, ok)

	require.NoError(t, tr.Update())
	p, ok := tr.CurrentPose()
	assert.True(t, ok)
	assert.Equal(t, pose.Pose{}, p)
}

func TestOdometryAtHeadingZero(t *testing.T) {
	sim := newSim(t, hardware.WithSimHeadingOffset(0.5))
	tr := New(sim, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, tr.Update())

	drive1s(t, sim, drive.Vector{Forward: 0.5})
	require.NoError(t, tr.Update())
	p := tr.Pose()
	assert.InDelta(t, 0.5*fullSpeedMMPerSec, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)
	assert.InDelta(t, 0, p.Heading, 1e-9, "sensor offset should be removed")

	drive1s(t, sim, drive.Vector{Strafe: 0.25})
	require.NoError(t, tr.Update())
	p = tr.Pose()
	assert.InDelta(t, 0.5*fullSpeedMMPerSec, p.X, 1e-6)
	assert.InDelta(t, 0.25*fullSpeedMMPerSec, p.Y, 1e-6)
}

func TestOdometryAtHeadingNinety(t *testing.T) {
	start := pose.FromDegrees(100, 200, 90)
	sim := newSim(t, hardware.WithSimStart(start))
	tr := New(sim, WithInitialPose(start))
	require.NoError(t, tr.Update())

	drive1s(t, sim, drive.Vector{Forward: 0.5})
	require.NoError(t, tr.Update())
	p := tr.Pose()
	assert.InDelta(t, 100, p.X, 1e-6)
	assert.InDelta(t, 200+0.5*fullSpeedMMPerSec, p.Y, 1e-6)
	assert.InDelta(t, math.Pi/2, p.Heading, 1e-9)

	drive1s(t, sim, drive.Vector{Strafe: 0.5})
	require.NoError(t, tr.Update())
	p = tr.Pose()
	assert.InDelta(t, 100-0.5*fullSpeedMMPerSec, p.X, 1e-6)
	assert.InDelta(t, 200+0.5*fullSpeedMMPerSec, p.Y, 1e-6)
}

func TestTrackingFollowsSimulatedCurve(t *testing.T) {
	sim := newSim(t)
	tr := New(sim)
	require.NoError(t, tr.Update())

	require.NoError(t, sim.SetWheelPowers(drive.Mix(drive.Vector{Forward: 0.4, Strafe: 0.1, Turn: 0.1}, 1)))
	for i := 0; i < 200; i++ {
		sim.Advance(10 * time.Millisecond)
		require.NoError(t, tr.Update())
	}
	truth := sim.Truth()
	p := tr.Pose()
	assert.InDelta(t, truth.X, p.X, 1e-6)
	assert.InDelta(t, truth.Y, p.Y, 1e-6)
	assert.InDelta(t, truth.Heading, p.Heading, 1e-9)
}

func TestResetHeadingKeepsPosition(t *testing.T) {
	start := pose.FromDegrees(0, 0, 30)
	sim := newSim(t, hardware.WithSimStart(start))
	tr := New(sim, WithInitialPose(start))
	require.NoError(t, tr.Update())
	drive1s(t, sim, drive.Vector{Forward: 0.2})
	require.NoError(t, tr.Update())
	before := tr.Pose()
	require.InDelta(t, 30, before.HeadingDegrees(), 1e-6)
	require.Greater(t, before.Y, 0.0)

	tr.ResetHeading()
	assert.Equal(t, 0.0, tr.Pose().Heading)
	require.NoError(t, tr.Update())
	after := tr.Pose()
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)
	assert.InDelta(t, 0, after.Heading, 1e-9)

	// Forward is now along the field x axis again.
	drive1s(t, sim, drive.Vector{Forward: 0.2})
	require.NoError(t, tr.Update())
	p := tr.Pose()
	assert.InDelta(t, before.X+0.2*fullSpeedMMPerSec, p.X, 1e-6)
	assert.InDelta(t, before.Y, p.Y, 1e-6)
}

func TestFailedReadsLeavePoseAlone(t *testing.T) {
	sim := newSim(t)
	tr := New(sim)
	require.NoError(t, tr.Update())
	drive1s(t, sim, drive.Vector{Forward: 0.5})

	sim.FailReads(1)
	assert.ErrorIs(t, tr.Update(), hardware.ErrSimulatedFault)
	assert.Equal(t, 0.0, tr.Pose().X)

	// The skipped distance is picked up by the next good read.
	require.NoError(t, tr.Update())
	assert.InDelta(t, 0.5*fullSpeedMMPerSec, tr.Pose().X, 1e-6)
}

func TestSetPose(t *testing.T) {
	sim := newSim(t, hardware.WithSimHeadingOffset(1))
	tr := New(sim)
	require.NoError(t, tr.Update())
	tr.SetPose(pose.FromDegrees(500, -50, -90))
	require.NoError(t, tr.Update())

	drive1s(t, sim, drive.Vector{Forward: 0.5})
	require.NoError(t, tr.Update())
	p := tr.Pose()
	assert.InDelta(t, 500, p.X, 1e-6)
	assert.InDelta(t, -50-0.5*fullSpeedMMPerSec, p.Y, 1e-6)
	assert.InDelta(t, -90, p.HeadingDegrees(), 1e-6)
}

func TestLoop(t *testing.T) {
	mock := clock.NewMock()
	sim := newSim(t)
	tr := New(sim,
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithClock(mock),
		WithPeriod(10*time.Millisecond),
	)
	sim.FailReads(3)
	tr.Start(context.Background())
	defer tr.Stop()

	require.NoError(t, sim.SetWheelPowers(drive.Mix(drive.Vector{Forward: 1}, 1)))
	require.Eventually(t, func() bool {
		sim.Advance(10 * time.Millisecond)
		mock.Add(10 * time.Millisecond)
		return tr.Pose().X > 10
	}, 5*time.Second, time.Millisecond)
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	tr := New(newSim(t))
	tr.Stop()
}

func TestResetHeadingCountsPendingTravel(t *testing.T) {
	start := pose.FromDegrees(0, 0, 90)
	sim := newSim(t, hardware.WithSimStart(start))
	tr := New(sim, WithInitialPose(start))
	require.NoError(t, tr.Update())

	// Move along +y and reset before the tracker has seen the travel.
	drive1s(t, sim, drive.Vector{Forward: 0.1})
	tr.ResetHeading()
	p := tr.Pose()
	assert.InDelta(t, 0, p.X, 1e-6)
	assert.InDelta(t, 0.1*fullSpeedMMPerSec, p.Y, 1e-6)
	assert.Equal(t, 0.0, p.Heading)

	require.NoError(t, tr.Update())
	p = tr.Pose()
	assert.InDelta(t, 0, p.X, 1e-6)
	assert.InDelta(t, 0.1*fullSpeedMMPerSec, p.Y, 1e-6)
	assert.InDelta(t, 0, p.Heading, 1e-9)
}

func TestSetPoseCountsPendingTravel(t *testing.T) {
	sim := newSim(t)
	tr := New(sim)
	require.NoError(t, tr.Update())

	drive1s(t, sim, drive.Vector{Strafe: 0.1})
	tr.SetPose(pose.FromDegrees(1000, 1000, 180))
	drive1s(t, sim, drive.Vector{Forward: 0.1})
	require.NoError(t, tr.Update())

	// Only the travel after re-anchoring counts, at the new heading.
	p := tr.Pose()
	assert.InDelta(t, 1000-0.1*fullSpeedMMPerSec, p.X, 1e-6)
	assert.InDelta(t, 1000, p.Y, 1e-6)
	assert.InDelta(t, 180, math.Abs(p.HeadingDegrees()), 1e-6)
}

func TestResetHeadingWithFailedRead(t *testing.T) {
	sim := newSim(t, hardware.WithSimStart(pose.FromDegrees(0, 0, 45)))
	tr := New(sim, WithInitialPose(pose.FromDegrees(0, 0, 45)))
	require.NoError(t, tr.Update())

	sim.FailReads(1)
	tr.ResetHeading()
	assert.Equal(t, 0.0, tr.Pose().Heading)
	require.NoError(t, tr.Update())
	assert.InDelta(t, 0, tr.Pose().Heading, 1e-9)
}

func TestConcurrentPoseReads(t *testing.T) {
	sim := newSim(t, hardware.WithSimStep(time.Millisecond))
	tr := New(sim, WithPeriod(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Start(ctx)
	tr.Start(ctx)
	defer tr.Stop()

	// Diagonal travel at heading 0 moves x and y by identical amounts, so a
	// torn read would show up as x != y.
	require.NoError(t, sim.SetWheelPowers(drive.Mix(drive.Vector{Forward: 0.3, Strafe: 0.3}, 1)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := 0; k < 200; k++ {
			v := float64(k * 10)
			tr.SetPose(pose.FromRadians(v, v, 0))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				p := tr.Pose()
				if p.X != p.Y {
					t.Errorf("torn pose: %v", p)
					return
				}
			}
		}()
	}
	wg.Wait()
}
