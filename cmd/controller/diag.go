package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/picobldc"
)

// WheelsCmd spins each wheel in turn and reports the motor controller's
// telemetry and the distance each wheel thinks it moved.
type WheelsCmd struct {
	Power    float64       `help:"Wheel power to test with." default:"0.2"`
	Duration time.Duration `help:"How long to spin each wheel." default:"1s"`
}

func (c *WheelsCmd) Run(g *Context) error {
	log := g.Log.Named("wheels")
	pico, err := picobldc.New(g.Config.Hardware.I2CDevice, log)
	if err != nil {
		return err
	}
	defer pico.Close()

	if err := pico.SetWatchdog(time.Second); err != nil {
		return errors.Wrap(err, "failed to enable watchdog")
	}
	distances := picobldc.NewDistanceTracker(pico)
	if err := distances.Poll(); err != nil {
		return err
	}

	names := []string{"front-left", "front-right", "back-left", "back-right"}
	for m := picobldc.FrontLeft; m < picobldc.NumMotors; m++ {
		var speeds picobldc.PerMotorVal[int16]
		speeds[m] = picobldc.RPSToMotorSpeed(c.Power * g.Config.Hardware.MaxWheelRPS)
		before := distances.AccumulatedRotations()

		deadline := time.Now().Add(c.Duration)
		for time.Now().Before(deadline) && g.Ctx.Err() == nil {
			if err := pico.SetMotorSpeeds(speeds); err != nil {
				log.Warnw("Failed to set motor speeds", "error", err)
			}
			time.Sleep(100 * time.Millisecond)
			if err := distances.Poll(); err != nil {
				log.Warnw("Failed to read distances", "error", err)
			}
		}
		_ = pico.SetMotorSpeeds(picobldc.PerMotorVal[int16]{})

		after := distances.AccumulatedRotations()
		battV, _ := pico.BattVolts()
		tempC, _ := pico.TemperatureC()
		status, _ := pico.Status()
		fmt.Printf("%-11s %.3f rotations  %.1fC %.2fV Status=%x\n",
			names[m], after[m]-before[m], tempC, battV, status)
		if g.Ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// JoyCmd prints joystick events and the resulting stick positions.
type JoyCmd struct {
	Joystick string `help:"Joystick device." default:"/dev/input/js0" env:"JOYSTICK_DEVICE"`
}

func (c *JoyCmd) Run(g *Context) error {
	var gamepad joystick.Gamepad
	joystickEvents := initJoystick(g.Ctx, func() {}, g.Log, c.Joystick)
	for je := range joystickEvents {
		gamepad.Apply(je)
		lx, ly := gamepad.LeftStick()
		rx, ry := gamepad.RightStick()
		fmt.Printf("%-16s L(%+.2f, %+.2f) R(%+.2f, %+.2f)\n", je, lx, ly, rx, ry)
	}
	return nil
}
