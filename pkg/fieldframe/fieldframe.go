// Package fieldframe converts between the fixed field frame and the robot's
// body frame, and works out how far the robot has to turn to reach a target
// heading.
package fieldframe

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

// HeadingPolicy selects how the raw heading difference is wrapped.
type HeadingPolicy int

const (
	// LegacyWrap reproduces the wrap used by the competition code: the two
	// wrap branches are not mirror images of each other, so results for
	// |raw| > π are not the shortest turn.
	LegacyWrap HeadingPolicy = iota
	// ShortestPath fully normalises the difference into (-π, π].
	ShortestPath
)

func (p HeadingPolicy) String() string {
	switch p {
	case LegacyWrap:
		return "legacy"
	case ShortestPath:
		return "shortest"
	default:
		return fmt.Sprintf("HeadingPolicy(%d)", int(p))
	}
}

func ParseHeadingPolicy(s string) (HeadingPolicy, error) {
	switch s {
	case "", "legacy":
		return LegacyWrap, nil
	case "shortest":
		return ShortestPath, nil
	}
	return LegacyWrap, errors.Errorf("unknown heading policy %q", s)
}

var origin r2.Vec

// ToRobotFrame rotates a field-relative displacement into the body frame of
// a robot facing heading (radians).
//
//	forward = dx·cosθ + dy·sinθ
//	strafe  = dy·cosθ − dx·sinθ
func ToRobotFrame(heading, dx, dy float64) (forward, strafe float64) {
	v := r2.Rotate(r2.Vec{X: dx, Y: dy}, -heading, origin)
	return v.X, v.Y
}

// ToFieldFrame is the inverse of ToRobotFrame.
func ToFieldFrame(heading, forward, strafe float64) (dx, dy float64) {
	v := r2.Rotate(r2.Vec{X: forward, Y: strafe}, heading, origin)
	return v.X, v.Y
}

// HeadingDelta returns the turn needed to go from current to target.  The
// result is negated to match the drivetrain's turn sign.
func HeadingDelta(target, current float64, policy HeadingPolicy) float64 {
	raw := target - current
	switch policy {
	case ShortestPath:
		raw = angle.Normalize(raw)
		// Negating π would give -π, which is outside (-π, π].
		if raw == math.Pi {
			return math.Pi
		}
	default:
		if raw > math.Pi {
			raw = angle.TwoPi - raw
		} else if raw < -math.Pi {
			raw = angle.TwoPi - math.Abs(raw)
		}
	}
	return -raw
}

// Relative computes the robot-relative motion from current to destination.
func Relative(current, destination pose.Pose, policy HeadingPolicy) pose.Motion {
	forward, strafe := ToRobotFrame(current.Heading, destination.X-current.X, destination.Y-current.Y)
	return pose.Motion{
		Forward:      forward,
		Strafe:       strafe,
		HeadingDelta: HeadingDelta(destination.Heading, current.Heading, policy),
	}
}
