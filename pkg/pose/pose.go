// Package pose holds the field pose and robot-relative motion types shared by
// the tracker, planner and drive code.
package pose

import (
	"fmt"
	"math"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/angle"
)

// Pose is a position and orientation in the field frame.  X and Y are in mm;
// Heading is in radians, range (-π, π].
type Pose struct {
	X       float64
	Y       float64
	Heading float64
}

func FromRadians(x, y, heading float64) Pose {
	return Pose{X: x, Y: y, Heading: angle.Normalize(heading)}
}

func FromDegrees(x, y, headingDegrees float64) Pose {
	return FromRadians(x, y, headingDegrees*math.Pi/180)
}

func (p Pose) HeadingDegrees() float64 {
	return p.Heading * 180 / math.Pi
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.1f, %.1f) %.1f°", p.X, p.Y, p.HeadingDegrees())
}

// Motion is the movement needed to get from the current pose to a
// destination, expressed in the robot's own frame.
type Motion struct {
	Forward      float64
	Strafe       float64
	HeadingDelta float64
}

// Distance returns the length of the translation part of the motion.
func (m Motion) Distance() float64 {
	return math.Hypot(m.Forward, m.Strafe)
}

func (m Motion) String() string {
	return fmt.Sprintf("fwd %.1f strafe %.1f turn %.1f°", m.Forward, m.Strafe, m.HeadingDelta*180/math.Pi)
}
