// Package planner holds the robot's current destination and keeps the
// robot-relative motion needed to reach it up to date in the background.
package planner

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/fieldframe"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

const DefaultPeriod = 10 * time.Millisecond

// PoseSource supplies the robot's current pose; ok is false until one is known.
type PoseSource interface {
	CurrentPose() (p pose.Pose, ok bool)
}

// Tolerance is how close counts as arrived.
type Tolerance struct {
	DistanceMM     float64
	HeadingRadians float64
}

type Planner struct {
	source PoseSource
	log    *zap.SugaredLogger
	clock  clock.Clock
	period time.Duration
	policy fieldframe.HeadingPolicy

	// lock guards the destination and the derived motion; SetDestination and
	// the recompute step both hold it so a recompute never sees half a
	// destination.
	lock           sync.Mutex
	destination    pose.Pose
	destinationSet bool
	motion         pose.Motion
	motionSet      bool

	runLock sync.Mutex
	parent  context.Context
	cancel  context.CancelFunc
	stopWG  sync.WaitGroup
}

type Option func(*Planner)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Planner) { p.log = log }
}

func WithClock(c clock.Clock) Option {
	return func(p *Planner) { p.clock = c }
}

func WithPeriod(d time.Duration) Option {
	return func(p *Planner) { p.period = d }
}

func WithHeadingPolicy(policy fieldframe.HeadingPolicy) Option {
	return func(p *Planner) { p.policy = policy }
}

func WithDestination(d pose.Pose) Option {
	return func(p *Planner) {
		p.destination = pose.FromRadians(d.X, d.Y, d.Heading)
		p.destinationSet = true
	}
}

func New(source PoseSource, opts ...Option) *Planner {
	p := &Planner{
		source: source,
		log:    zap.NewNop().Sugar(),
		clock:  clock.New(),
		period: DefaultPeriod,
		policy: fieldframe.LegacyWrap,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetDestination replaces the destination.  The motion is brought up to date
// against the old destination first and then the new one.
func (p *Planner) SetDestination(d pose.Pose) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.recomputeLocked()
	p.log.Debugw("New destination", "destination", d)
	p.destination = pose.FromRadians(d.X, d.Y, d.Heading)
	p.destinationSet = true
	p.recomputeLocked()
}

// ClearDestination returns the planner to having no destination.  The last
// computed motion is kept.
func (p *Planner) ClearDestination() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.destination = pose.Pose{}
	p.destinationSet = false
}

// Destination returns the current destination, refreshing the motion as a
// side effect.
func (p *Planner) Destination() (pose.Pose, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.recomputeLocked()
	return p.destination, p.destinationSet
}

// RelativeMotion recomputes and returns the motion from the current pose to
// the destination.  If either is unknown the last value is returned (zero if
// there has never been one).
func (p *Planner) RelativeMotion() pose.Motion {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.recomputeLocked()
	return p.motion
}

// Recompute runs one update step.
func (p *Planner) Recompute() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.recomputeLocked()
}

func (p *Planner) recomputeLocked() {
	if !p.destinationSet {
		return
	}
	current, ok := p.source.CurrentPose()
	if !ok {
		return
	}
	p.motion = fieldframe.Relative(current, p.destination, p.policy)
	p.motionSet = true
}

// Arrived reports whether the robot is within tol of the destination.  It is
// false while there is no destination or no motion has been computed.
func (p *Planner) Arrived(tol Tolerance) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.recomputeLocked()
	if !p.destinationSet || !p.motionSet {
		return false
	}
	return p.motion.Distance() <= tol.DistanceMM &&
		math.Abs(p.motion.HeadingDelta) <= tol.HeadingRadians
}

// Start launches the background recompute loop.
func (p *Planner) Start(ctx context.Context) {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	p.parent = ctx
	p.startLocked()
}

// Stop halts the loop, leaving the destination and motion in place.
func (p *Planner) Stop() {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.stopWG.Wait()
	p.cancel = nil
}

// Resume restarts a stopped loop under the context given to Start.
func (p *Planner) Resume() {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	if p.cancel != nil || p.parent == nil {
		return
	}
	p.startLocked()
}

// Running reports whether the loop is live.  A loop whose parent context has
// ended counts as stopped.
func (p *Planner) Running() bool {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	return p.cancel != nil && p.parent.Err() == nil
}

func (p *Planner) startLocked() {
	if p.cancel != nil || p.parent.Err() != nil {
		return
	}
	var loopCtx context.Context
	loopCtx, p.cancel = context.WithCancel(p.parent)
	ticker := p.clock.Ticker(p.period)
	p.stopWG.Add(1)
	go p.loop(loopCtx, ticker)
}

func (p *Planner) loop(ctx context.Context, ticker *clock.Ticker) {
	defer p.stopWG.Done()
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		p.Recompute()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
