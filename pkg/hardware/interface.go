package hardware

import (
	"context"
	"fmt"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
)

// Interface is the only way the rest of the controller touches the robot.
// Sensor reads may fail transiently; callers decide whether to retry.
type Interface interface {
	Start(ctx context.Context)

	// Heading returns the absolute orientation reading in radians.
	Heading() (float64, error)
	// WheelDistances returns the distance each wheel has rolled since
	// start-up, in mm.
	WheelDistances() (WheelDistances, error)

	SetWheelPowers(p drive.WheelPowers) error
	StopMotors()

	PlaySound(path string)
	Shutdown()
}

// WheelDistances is a per-wheel distance in mm, in drive.WheelPowers order.
type WheelDistances struct {
	FrontLeft  float64
	FrontRight float64
	BackLeft   float64
	BackRight  float64
}

func (w WheelDistances) Sub(o WheelDistances) WheelDistances {
	return WheelDistances{
		FrontLeft:  w.FrontLeft - o.FrontLeft,
		FrontRight: w.FrontRight - o.FrontRight,
		BackLeft:   w.BackLeft - o.BackLeft,
		BackRight:  w.BackRight - o.BackRight,
	}
}

func (w WheelDistances) String() string {
	return fmt.Sprintf("FL %.1f FR %.1f BL %.1f BR %.1f", w.FrontLeft, w.FrontRight, w.BackLeft, w.BackRight)
}

// Config selects and parameterises the real hardware.
type Config struct {
	I2CDevice     string  `yaml:"i2c-device"`
	HeadingSource string  `yaml:"heading-source"` // "bno08x" or "gyro"
	IMUSerial     string  `yaml:"imu-serial"`
	GyroSPI       string  `yaml:"gyro-spi"`
	MaxWheelRPS   float64 `yaml:"max-wheel-rps"`
	WheelCircumMM float64 `yaml:"wheel-circum-mm"`
}
