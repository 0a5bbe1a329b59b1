package planner

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

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/fieldframe"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

type fakeSource struct {
	lock sync.Mutex
	pose pose.Pose
	ok   bool
}

func (f *fakeSource) CurrentPose() (pose.Pose, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.pose, f.ok
}

func (f *fakeSource) set(p pose.Pose) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.pose = p
	f.ok = true
}

func TestRelativeMotion(t *testing.T) {
	src := &fakeSource{}
	src.set(pose.FromDegrees(0, 0, 90))
	p := New(src, WithLogger(zaptest.NewLogger(t).Sugar()))

	p.SetDestination(pose.FromDegrees(0, 100, 90))
	m := p.RelativeMotion()
	assert.InDelta(t, 100, m.Forward, 1e-9)
	assert.InDelta(t, 0, m.Strafe, 1e-9)
	assert.InDelta(t, 0, m.HeadingDelta, 1e-9)

	src.set(pose.FromDegrees(0, 0, 0))
	m = p.RelativeMotion()
	assert.InDelta(t, 0, m.Forward, 1e-9)
	assert.InDelta(t, 100, m.Strafe, 1e-9)
	assert.InDelta(t, -math.Pi/2, m.HeadingDelta, 1e-9)
}

func TestUnsetKeepsCachedMotion(t *testing.T) {
	src := &fakeSource{}
	p := New(src)

	// Nothing known yet.
	assert.Equal(t, pose.Motion{}, p.RelativeMotion())
	_, ok := p.Destination()
	assert.False(t, ok)

	p.SetDestination(pose.FromDegrees(10, 0, 0))
	assert.Equal(t, pose.Motion{}, p.RelativeMotion(), "no pose yet")

	src.set(pose.Pose{})
	first := p.RelativeMotion()
	assert.InDelta(t, 10, first.Forward, 1e-9)

	p.ClearDestination()
	src.set(pose.FromDegrees(5, 0, 0))
	assert.Equal(t, first, p.RelativeMotion())
	_, ok = p.Destination()
	assert.False(t, ok)
	assert.False(t, p.Arrived(Tolerance{DistanceMM: 1000, HeadingRadians: math.Pi}))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	src.set(pose.FromDegrees(12, -7, 33))
	p := New(src, WithDestination(pose.FromDegrees(400, 250, -120)))
	p.Recompute()
	first := p.RelativeMotion()
	for i := 0; i < 5; i++ {
		p.Recompute()
		assert.Equal(t, first, p.RelativeMotion())
	}
}

func TestHeadingPolicies(t *testing.T) {
	src := &fakeSource{}
	src.set(pose.FromDegrees(0, 0, -170))
	dest := pose.FromDegrees(0, 0, 170)

	legacy := New(src, WithDestination(dest))
	shortest := New(src, WithDestination(dest), WithHeadingPolicy(fieldframe.ShortestPath))

	// The legacy wrap turns the long way round for a positive raw difference.
	assert.InDelta(t, -20*math.Pi/180, legacy.RelativeMotion().HeadingDelta, 1e-9)
	assert.InDelta(t, 20*math.Pi/180, shortest.RelativeMotion().HeadingDelta, 1e-9)
}

func TestArrived(t *testing.T) {
	src := &fakeSource{}
	src.set(pose.FromDegrees(0, 0, 0))
	p := New(src, WithDestination(pose.FromDegrees(30, 40, 5)))
	tol := Tolerance{DistanceMM: 60, HeadingRadians: 10 * math.Pi / 180}
	assert.True(t, p.Arrived(tol))

	tol.DistanceMM = 49
	assert.False(t, p.Arrived(tol))

	tol.DistanceMM = 60
	tol.HeadingRadians = 2 * math.Pi / 180
	assert.False(t, p.Arrived(tol))
}

func TestConcurrentDestinationWrites(t *testing.T) {
	src := &fakeSource{}
	src.set(pose.Pose{})
	p := New(src, WithLogger(zaptest.NewLogger(t).Sugar()))
	p.Start(context.Background())
	defer p.Stop()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := 0; k < 500; k++ {
				v := float64(w*1000 + k)
				p.SetDestination(pose.FromRadians(v, v, 0))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				m := p.RelativeMotion()
				// A torn destination would have x != y.
				if m.Forward != m.Strafe {
					t.Errorf("torn motion: %v", m)
					return
				}
				if d, ok := p.Destination(); ok && d.X != d.Y {
					t.Errorf("torn destination: %v", d)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestStopResumeKeepsState(t *testing.T) {
	mock := clock.NewMock()
	src := &fakeSource{}
	src.set(pose.Pose{})
	p := New(src, WithClock(mock), WithPeriod(10*time.Millisecond))

	assert.False(t, p.Running())
	p.Resume()
	assert.False(t, p.Running(), "resume before start does nothing")

	p.Start(context.Background())
	assert.True(t, p.Running())
	p.SetDestination(pose.FromDegrees(100, 0, 0))

	p.Stop()
	assert.False(t, p.Running())
	d, ok := p.Destination()
	require.True(t, ok)
	assert.Equal(t, 100.0, d.X)

	p.Resume()
	assert.True(t, p.Running())
	src.set(pose.FromDegrees(60, 0, 0))
	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		p.lock.Lock()
		defer p.lock.Unlock()
		return math.Abs(p.motion.Forward-40) < 1e-9
	}, time.Second, time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestLoopEndsWithParentContext(t *testing.T) {
	src := &fakeSource{}
	p := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	done := make(chan struct{})
	go func() {
		p.stopWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}
}

func TestWithDestinationNormalisesHeading(t *testing.T) {
	src := &fakeSource{}
	p := New(src, WithDestination(pose.Pose{X: 1, Y: 2, Heading: 3 * math.Pi / 2}))
	d, ok := p.Destination()
	require.True(t, ok)
	assert.InDelta(t, -math.Pi/2, d.Heading, 1e-9)

	p.SetDestination(pose.Pose{X: 1, Y: 2, Heading: 3 * math.Pi / 2})
	d2, _ := p.Destination()
	assert.Equal(t, d, d2)
}

func TestResumeAfterParentCancelled(t *testing.T) {
	src := &fakeSource{}
	p := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.True(t, p.Running())

	cancel()
	assert.False(t, p.Running())
	p.Stop()

	p.Resume()
	assert.False(t, p.Running())
	p.Stop()
}
