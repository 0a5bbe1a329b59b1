// Package tracker keeps a continuously-updated estimate of the robot's pose on
// the field by combining the absolute heading sensor with wheel odometry.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/fieldframe"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

const DefaultPeriod = 10 * time.Millisecond

// Sensors is the subset of the hardware that the tracker reads.
type Sensors interface {
	Heading() (float64, error)
	WheelDistances() (hardware.WheelDistances, error)
}

type Tracker struct {
	sensors Sensors
	log     *zap.SugaredLogger
	clock   clock.Clock
	period  time.Duration

	// updateLock serialises sensor reads with integration so that readings
	// are applied in the order they were taken.
	updateLock sync.Mutex

	// lock guards the fields below.
	lock          sync.RWMutex
	pose          pose.Pose
	poseSet       bool
	headingOffset float64
	// resetPending makes the next update take its sensor heading as the
	// current pose heading.
	resetPending  bool
	lastDistances hardware.WheelDistances
	haveDistances bool

	cancel context.CancelFunc
	stopWG sync.WaitGroup
}

type Option func(*Tracker)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *Tracker) { t.log = log }
}

func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

func WithPeriod(d time.Duration) Option {
	return func(t *Tracker) { t.period = d }
}

// WithInitialPose anchors the tracker at p; the sensor heading at the first
// update is taken to be p.Heading.
func WithInitialPose(p pose.Pose) Option {
	return func(t *Tracker) {
		t.pose = p
		t.poseSet = true
		t.resetPending = true
	}
}

func New(sensors Sensors, opts ...Option) *Tracker {
	t := &Tracker{
		sensors:      sensors,
		log:          zap.NewNop().Sugar(),
		clock:        clock.New(),
		period:       DefaultPeriod,
		resetPending: true,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Pose returns the latest estimate.  Before the first successful update it
// returns the zero pose (or the initial pose, if one was given).
func (t *Tracker) Pose() pose.Pose {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.pose
}

// CurrentPose returns the latest estimate and whether one exists yet.
func (t *Tracker) CurrentPose() (pose.Pose, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.pose, t.poseSet
}

// ResetHeading makes the robot's current facing direction heading zero.  The
// position is left alone.
func (t *Tracker) ResetHeading() {
	t.reanchor(func(p pose.Pose) pose.Pose {
		t.log.Infow("Resetting heading", "was", p.HeadingDegrees())
		p.Heading = 0
		return p
	})
}

// SetPose re-anchors the tracker at p.
func (t *Tracker) SetPose(p pose.Pose) {
	t.reanchor(func(pose.Pose) pose.Pose {
		t.log.Infow("Setting pose", "pose", p)
		return pose.FromRadians(p.X, p.Y, p.Heading)
	})
}

// reanchor brings the estimate up to date and then replaces it with
// f(current), so travel since the last update is counted at the heading the
// robot really had.  If the sensors can't be read the new heading reference
// is taken at the next successful update instead.
func (t *Tracker) reanchor(f func(pose.Pose) pose.Pose) {
	t.updateLock.Lock()
	defer t.updateLock.Unlock()

	rawHeading, distances, err := t.read()

	t.lock.Lock()
	defer t.lock.Unlock()
	if err != nil {
		t.log.Debugw("Re-anchoring without a fresh reading", "error", err)
	} else {
		t.integrateLocked(rawHeading, distances)
	}
	t.pose = f(t.pose)
	t.poseSet = true
	if err != nil {
		t.resetPending = true
		return
	}
	t.headingOffset = rawHeading - t.pose.Heading
	t.resetPending = false
}

// Update runs one integration cycle.  On a sensor error the pose is left
// untouched and the error returned.
func (t *Tracker) Update() error {
	t.updateLock.Lock()
	defer t.updateLock.Unlock()

	rawHeading, distances, err := t.read()
	if err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.integrateLocked(rawHeading, distances)
	return nil
}

func (t *Tracker) read() (float64, hardware.WheelDistances, error) {
	rawHeading, err := t.sensors.Heading()
	if err != nil {
		return 0, hardware.WheelDistances{}, errors.Wrap(err, "failed to read heading")
	}
	distances, err := t.sensors.WheelDistances()
	if err != nil {
		return 0, hardware.WheelDistances{}, errors.Wrap(err, "failed to read wheel distances")
	}
	return rawHeading, distances, nil
}

func (t *Tracker) integrateLocked(rawHeading float64, distances hardware.WheelDistances) {
	if t.resetPending {
		t.headingOffset = rawHeading - t.pose.Heading
		t.resetPending = false
	}
	heading := angle.Normalize(rawHeading - t.headingOffset)

	if !t.haveDistances {
		t.lastDistances = distances
		t.haveDistances = true
		t.pose.Heading = heading
		t.poseSet = true
		return
	}

	d := distances.Sub(t.lastDistances)
	t.lastDistances = distances

	forward := (d.FrontLeft + d.FrontRight + d.BackLeft + d.BackRight) / 4
	strafe := (d.FrontLeft - d.FrontRight - d.BackLeft + d.BackRight) / 4

	// Rotate at the mean of the old and new headings.
	mid := t.pose.Heading + angle.Normalize(heading-t.pose.Heading)/2
	dx, dy := fieldframe.ToFieldFrame(mid, forward, strafe)

	t.pose = pose.Pose{
		X:       t.pose.X + dx,
		Y:       t.pose.Y + dy,
		Heading: heading,
	}
	t.poseSet = true
}

func (t *Tracker) Start(ctx context.Context) {
	var loopCtx context.Context
	loopCtx, t.cancel = context.WithCancel(ctx)
	ticker := t.clock.Ticker(t.period)
	t.stopWG.Add(1)
	go t.loop(loopCtx, ticker)
}

// Stop ends the update loop and waits for it to exit.
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.stopWG.Wait()
}

func (t *Tracker) loop(ctx context.Context, ticker *clock.Ticker) {
	defer t.stopWG.Done()
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.Update(); err != nil {
			t.log.Debugw("Skipping tracker cycle", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
