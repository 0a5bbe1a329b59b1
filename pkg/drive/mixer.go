// Package drive turns a motion vector into wheel powers for a mecanum
// drivetrain.
package drive

import (
	"fmt"
	"math"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/fieldframe"
)

// Vector is a drive request in the robot frame; each component is nominally
// in [-1, 1].
type Vector struct {
	Forward float64
	Strafe  float64
	Turn    float64
}

// WheelPowers holds one power per wheel, in [-1, 1].
type WheelPowers struct {
	FrontLeft  float64
	FrontRight float64
	BackLeft   float64
	BackRight  float64
}

func (w WheelPowers) Max() float64 {
	return max(math.Abs(w.FrontLeft), math.Abs(w.FrontRight), math.Abs(w.BackLeft), math.Abs(w.BackRight))
}

func (w WheelPowers) Scale(s float64) WheelPowers {
	return WheelPowers{
		FrontLeft:  w.FrontLeft * s,
		FrontRight: w.FrontRight * s,
		BackLeft:   w.BackLeft * s,
		BackRight:  w.BackRight * s,
	}
}

func (w WheelPowers) String() string {
	return fmt.Sprintf("FL %.3f FR %.3f BL %.3f BR %.3f", w.FrontLeft, w.FrontRight, w.BackLeft, w.BackRight)
}

// Mix maps the vector to wheel powers.  If any wheel would exceed maxSpeed
// all four are scaled down together so the ratios between them are kept.
// maxSpeed above 1 is treated as 1; zero or negative stops the wheels.
func Mix(v Vector, maxSpeed float64) WheelPowers {
	if maxSpeed <= 0 {
		return WheelPowers{}
	}
	maxSpeed = math.Min(maxSpeed, 1)

	speeds := WheelPowers{
		FrontLeft:  v.Forward + v.Strafe + v.Turn,
		FrontRight: v.Forward - v.Strafe - v.Turn,
		BackLeft:   v.Forward - v.Strafe + v.Turn,
		BackRight:  v.Forward + v.Strafe - v.Turn,
	}

	m := speeds.Max()
	if m > maxSpeed {
		speeds = speeds.Scale(maxSpeed / m)
	}
	return speeds
}

// FieldCentric rotates a stick deflection given in the field frame (x to the
// right, y forward) into a robot-frame forward/strafe pair so that pushing
// the stick away from the driver always drives the same way down the field.
func FieldCentric(stickX, stickY, heading float64) (forward, strafe float64) {
	return fieldframe.ToRobotFrame(heading, stickY, stickX)
}

func ApplyExpo(value float64, expo float64) float64 {
	absVal := math.Abs(value)
	absExpo := math.Pow(absVal, expo)
	signedExpo := math.Copysign(absExpo, value)
	return signedExpo
}
