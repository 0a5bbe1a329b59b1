// Package automode drives the robot through a list of waypoints using the
// path planner's robot-relative motion.
package automode

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/planner"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/sound"
)

// Planner is the part of planner.Planner that the mode drives.
type Planner interface {
	SetDestination(p pose.Pose)
	ClearDestination()
	RelativeMotion() pose.Motion
	Arrived(tol planner.Tolerance) bool
	Resume()
	Stop()
}

type Settings struct {
	Speed       float64
	ForwardGain float64
	StrafeGain  float64
	TurnGain    float64
	Tolerance   planner.Tolerance
	Waypoints   []pose.Pose
	Period      time.Duration
}

type AutoMode struct {
	log     *zap.SugaredLogger
	clock   clock.Clock
	hw      hardware.Interface
	planner Planner
	cfg     Settings

	lock     sync.Mutex
	next     int
	finished bool

	cancel context.CancelFunc
	stopWG sync.WaitGroup
}

func New(log *zap.SugaredLogger, clk clock.Clock, hw hardware.Interface, p Planner, cfg Settings) *AutoMode {
	return &AutoMode{
		log:     log,
		clock:   clk,
		hw:      hw,
		planner: p,
		cfg:     cfg,
	}
}

func (m *AutoMode) Name() string {
	return "Auto mode"
}

// Start picks up where the mode left off, or from the first waypoint if the
// previous run finished.
func (m *AutoMode) Start(ctx context.Context) {
	if m.Finished() {
		m.Reset()
	} else {
		m.setDestination()
	}
	m.planner.Resume()

	m.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	ticker := m.clock.Ticker(m.cfg.Period)
	go m.loop(loopCtx, ticker)
}

func (m *AutoMode) Stop() {
	m.cancel()
	m.stopWG.Wait()
	m.planner.Stop()
}

// Reset goes back to the first waypoint.
func (m *AutoMode) Reset() {
	m.lock.Lock()
	m.next = 0
	m.finished = false
	m.lock.Unlock()
	m.setDestination()
}

// Finished is true once the last waypoint has been reached.
func (m *AutoMode) Finished() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.finished
}

// Current returns the index of the waypoint being driven to.
func (m *AutoMode) Current() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.next
}

func (m *AutoMode) setDestination() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.next >= len(m.cfg.Waypoints) {
		m.finished = true
		m.planner.ClearDestination()
		return
	}
	wp := m.cfg.Waypoints[m.next]
	m.log.Infow("Heading for waypoint", "index", m.next, "waypoint", wp)
	m.planner.SetDestination(wp)
}

func (m *AutoMode) loop(ctx context.Context, ticker *clock.Ticker) {
	defer m.stopWG.Done()
	defer ticker.Stop()
	defer m.hw.StopMotors()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.Step()
	}
}

// Step runs one control cycle.
func (m *AutoMode) Step() {
	if m.Finished() {
		m.hw.StopMotors()
		return
	}
	if m.planner.Arrived(m.cfg.Tolerance) {
		m.log.Infow("Arrived at waypoint", "index", m.Current())
		m.hw.PlaySound(sound.Arrived)
		m.lock.Lock()
		m.next++
		m.lock.Unlock()
		m.setDestination()
		if m.Finished() {
			m.log.Info("All waypoints done")
			m.hw.StopMotors()
			return
		}
	}

	motion := m.planner.RelativeMotion()
	v := drive.Vector{
		Forward: m.cfg.ForwardGain * motion.Forward,
		Strafe:  m.cfg.StrafeGain * motion.Strafe,
		// HeadingDelta is negated relative to the turn the drivetrain makes.
		Turn: -m.cfg.TurnGain * motion.HeadingDelta,
	}
	powers := drive.Mix(v, m.cfg.Speed)
	if err := m.hw.SetWheelPowers(powers); err != nil {
		m.log.Warnw("Failed to set wheel powers", "error", err)
	}
}
