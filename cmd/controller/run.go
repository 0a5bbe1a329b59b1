package main

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pausemode"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/screen"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/sound"
)

type Mode interface {
	Name() string
	Start(ctx context.Context)
	Stop()
}

type JoystickUser interface {
	OnJoystickEvent(event *joystick.Event)
}

type slowModer interface {
	SlowMode() bool
}

type battery interface {
	BattVolts() (float64, error)
}

type RunCmd struct {
	Joystick string `help:"Joystick device." default:"/dev/input/js0" env:"JOYSTICK_DEVICE"`
	Screen   string `help:"Framebuffer for the status screen." default:"/dev/fb1"`
	Sim      bool   `help:"Drive the simulator instead of the real hardware."`
}

func (c *RunCmd) Run(g *Context) error {
	log := g.Log
	ctx, cancel := context.WithCancel(g.Ctx)
	defer cancel()

	hw, err := openHardware(g, c.Sim)
	if err != nil {
		return err
	}
	clk := clock.New()
	s := newSession(log, g.Config, clk, hw)
	s.start(ctx)
	defer s.stop()

	scr := screen.New(log.Named("screen"), clk)
	go scr.LoopUpdatingScreen(ctx, c.Screen, 500*time.Millisecond)

	// Wait for the joystick and kick off a background thread to read from it.
	joystickEvents := initJoystick(ctx, cancel, log, c.Joystick)

	hw.PlaySound(sound.Startup)

	allModes := []Mode{
		s.teleopMode(),
		s.autoMode(),
		&pausemode.PauseMode{Hardware: hw},
	}
	activeModeIdx := 0
	activeMode := allModes[activeModeIdx]
	log.Infof("----- %s -----", activeMode.Name())
	activeMode.Start(ctx)

	switchMode := func(delta int) {
		activeMode.Stop()
		hw.StopMotors()
		activeModeIdx = (activeModeIdx + delta + len(allModes)) % len(allModes)
		activeMode = allModes[activeModeIdx]
		log.Infof("----- %s -----", activeMode.Name())
		hw.PlaySound(sound.ModeChange)
		activeMode.Start(ctx)
	}

	updateScreen := func() {
		dest, hasDest := s.planner.Destination()
		slow := false
		if sm, ok := activeMode.(slowModer); ok {
			slow = sm.SlowMode()
		}
		volts := 0.0
		if b, ok := hw.(battery); ok {
			if v, err := b.BattVolts(); err == nil {
				volts = v
			}
		}
		scr.Update(func(st *screen.Status) {
			st.Mode = activeMode.Name()
			st.Pose = s.tracker.Pose()
			st.Destination = dest
			st.HasDestination = hasDest
			st.SlowMode = slow
			st.BattVolts = volts
		})
	}

	statusTicker := clk.Ticker(250 * time.Millisecond)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Context done, stopping active mode and shutting down")
			activeMode.Stop()
			return nil
		case event, ok := <-joystickEvents:
			if !ok {
				log.Error("Joystick events channel closed!")
				activeMode.Stop()
				return nil
			}
			// Intercept Options/Share to implement mode switching.
			if event.Type == joystick.EventTypeButton && event.Value == 1 {
				switch event.Number {
				case joystick.ButtonOptions:
					switchMode(1)
					continue
				case joystick.ButtonShare:
					switchMode(-1)
					continue
				}
			}
			if ju, ok := activeMode.(JoystickUser); ok {
				ju.OnJoystickEvent(event)
			}
		case <-statusTicker.C:
			updateScreen()
			log.Debugw("Status", "mode", activeMode.Name(), "pose", s.tracker.Pose())
		}
	}
}

func openHardware(g *Context, sim bool) (hardware.Interface, error) {
	if sim {
		return hardware.NewSim(g.Log.Named("sim"), hardware.WithSimStart(g.Config.Auto.Start.Pose())), nil
	}
	hw, err := hardware.New(g.Config.Hardware, g.Log.Named("hardware"))
	if err != nil {
		return nil, err
	}
	return hw, nil
}

func initJoystick(ctx context.Context, cancel context.CancelFunc, log *zap.SugaredLogger, device string) chan *joystick.Event {
	joystickEvents := make(chan *joystick.Event, 1)
	firstLog := true
	for ctx.Err() == nil {
		j, err := joystick.NewJoystick(device)
		if err != nil {
			if firstLog {
				log.Infow("Waiting for joystick", "error", err)
				firstLog = false
			}
			time.Sleep(1 * time.Second)
			continue
		}

		log.Infow("Opened joystick", "device", device)
		go func() {
			defer cancel()
			err := loopReadingJoystickEvents(ctx, j, joystickEvents)
			log.Errorw("Joystick failed", "error", err)
		}()
		return joystickEvents
	}
	close(joystickEvents)
	return joystickEvents
}

func loopReadingJoystickEvents(ctx context.Context, j *joystick.Joystick, events chan *joystick.Event) error {
	defer close(events)
	defer j.Close()
	for ctx.Err() == nil {
		event, err := j.ReadEvent()
		if err != nil {
			return err
		}
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}
