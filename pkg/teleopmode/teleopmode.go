package teleopmode

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/sound"
)

// HeadingSource is the part of the pose tracker that teleop needs.
type HeadingSource interface {
	Pose() pose.Pose
	ResetHeading()
}

type Settings struct {
	NormalSpeed  float64
	SlowSpeed    float64
	StickExpo    float64
	FieldCentric bool
	Period       time.Duration
}

type TeleopMode struct {
	log     *zap.SugaredLogger
	clock   clock.Clock
	hw      hardware.Interface
	tracker HeadingSource
	cfg     Settings

	speed   *drive.SpeedSelector
	gamepad joystick.Gamepad

	cancel         context.CancelFunc
	stopWG         sync.WaitGroup
	joystickEvents chan *joystick.Event
}

func New(log *zap.SugaredLogger, clk clock.Clock, hw hardware.Interface, tracker HeadingSource, cfg Settings) *TeleopMode {
	return &TeleopMode{
		log:            log,
		clock:          clk,
		hw:             hw,
		tracker:        tracker,
		cfg:            cfg,
		speed:          drive.NewSpeedSelector(cfg.NormalSpeed, cfg.SlowSpeed),
		joystickEvents: make(chan *joystick.Event),
	}
}

func (m *TeleopMode) Name() string {
	return "Teleop mode"
}

func (m *TeleopMode) SlowMode() bool {
	return m.speed.SlowMode()
}

func (m *TeleopMode) Start(ctx context.Context) {
	m.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	ticker := m.clock.Ticker(m.cfg.Period)
	go m.loop(loopCtx, ticker)
}

func (m *TeleopMode) Stop() {
	m.cancel()
	m.stopWG.Wait()
}

// OnJoystickEvent hands an event to the running loop.
func (m *TeleopMode) OnJoystickEvent(event *joystick.Event) {
	m.joystickEvents <- event
}

func (m *TeleopMode) loop(ctx context.Context, ticker *clock.Ticker) {
	defer m.stopWG.Done()
	defer ticker.Stop()
	defer m.hw.StopMotors()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.joystickEvents:
			m.onEvent(event)
		case <-ticker.C:
			// Re-apply on a timer too so field-centric drive follows the
			// robot's rotation while the sticks are held still.
		}
		m.drive()
	}
}

func (m *TeleopMode) onEvent(event *joystick.Event) {
	pressed := m.gamepad.Apply(event)
	if event.Type != joystick.EventTypeButton {
		return
	}
	switch event.Number {
	case joystick.ButtonL2:
		if m.speed.OnButton(event.Value != 0) {
			m.log.Infow("Speed changed", "slow", m.speed.SlowMode(), "maxSpeed", m.speed.MaxSpeed())
		}
	case joystick.ButtonPS:
		if pressed {
			m.tracker.ResetHeading()
			m.hw.PlaySound(sound.ModeChange)
		}
	}
}

// Vector computes the mixer input for the current stick positions.
func (m *TeleopMode) Vector() drive.Vector {
	lx, ly := m.gamepad.LeftStick()
	rx, _ := m.gamepad.RightStick()

	x := drive.ApplyExpo(lx, m.cfg.StickExpo)
	y := drive.ApplyExpo(ly, m.cfg.StickExpo)
	v := drive.Vector{
		Forward: y,
		Strafe:  x,
		Turn:    drive.ApplyExpo(rx, m.cfg.StickExpo),
	}
	if m.cfg.FieldCentric {
		v.Forward, v.Strafe = drive.FieldCentric(x, y, m.tracker.Pose().Heading)
	}
	return v
}

func (m *TeleopMode) drive() {
	powers := drive.Mix(m.Vector(), m.speed.MaxSpeed())
	if err := m.hw.SetWheelPowers(powers); err != nil {
		m.log.Warnw("Failed to set wheel powers", "error", err)
	}
}
