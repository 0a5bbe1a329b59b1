// Package config loads the controller's YAML configuration.  Anything missing
// from the file keeps its built-in default, and the effective configuration is
// written back out next to the input so it's easy to see what was used.
package config

import (
	"io/ioutil"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/bno08x"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/fieldframe"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/planner"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

const DefaultPath = "/cfg/field-controller.yaml"

type Config struct {
	TrackerPeriod time.Duration `yaml:"tracker-period"`
	PlannerPeriod time.Duration `yaml:"planner-period"`
	ControlPeriod time.Duration `yaml:"control-period"`

	NormalSpeed  float64 `yaml:"normal-speed"`
	SlowSpeed    float64 `yaml:"slow-speed"`
	AutoSpeed    float64 `yaml:"auto-speed"`
	StickExpo    float64 `yaml:"stick-expo"`
	FieldCentric bool    `yaml:"field-centric"`

	HeadingPolicy string `yaml:"heading-policy"`

	Hardware hardware.Config `yaml:"hardware"`

	Auto AutoConfig `yaml:"auto"`
}

type AutoConfig struct {
	// Gains convert mm / radians of error into mixer input.
	ForwardGain float64 `yaml:"forward-gain"`
	StrafeGain  float64 `yaml:"strafe-gain"`
	TurnGain    float64 `yaml:"turn-gain"`

	ArrivedDistanceMM     float64 `yaml:"arrived-distance-mm"`
	ArrivedHeadingDegrees float64 `yaml:"arrived-heading-degrees"`

	Start     Waypoint   `yaml:"start"`
	Waypoints []Waypoint `yaml:"waypoints"`
}

type Waypoint struct {
	X              float64 `yaml:"x"`
	Y              float64 `yaml:"y"`
	HeadingDegrees float64 `yaml:"heading-degrees"`
}

func (w Waypoint) Pose() pose.Pose {
	return pose.FromDegrees(w.X, w.Y, w.HeadingDegrees)
}

func Default() Config {
	return Config{
		TrackerPeriod: 10 * time.Millisecond,
		PlannerPeriod: 10 * time.Millisecond,
		ControlPeriod: 20 * time.Millisecond,

		NormalSpeed:  drive.DefaultNormalSpeed,
		SlowSpeed:    drive.DefaultSlowSpeed,
		AutoSpeed:    0.5,
		StickExpo:    1.6,
		FieldCentric: true,

		HeadingPolicy: fieldframe.LegacyWrap.String(),

		Hardware: hardware.Config{
			I2CDevice:     "/dev/i2c-1",
			HeadingSource: "bno08x",
			IMUSerial:     bno08x.DefaultSerialDevice,
			GyroSPI:       "/dev/spidev0.0",
			MaxWheelRPS:   chassis.MaxWheelRPS,
			WheelCircumMM: chassis.WheelCircumMM,
		},

		Auto: AutoConfig{
			ForwardGain:           0.004,
			StrafeGain:            0.004,
			TurnGain:              0.8,
			ArrivedDistanceMM:     15,
			ArrivedHeadingDegrees: 3,
			Waypoints: []Waypoint{
				{X: 600, Y: 0, HeadingDegrees: 0},
				{X: 600, Y: 600, HeadingDegrees: 90},
				{X: 0, Y: 0, HeadingDegrees: 0},
			},
		},
	}
}

// Policy returns the parsed heading policy.
func (c Config) Policy() fieldframe.HeadingPolicy {
	p, _ := fieldframe.ParseHeadingPolicy(c.HeadingPolicy)
	return p
}

func (c Config) Tolerance() planner.Tolerance {
	return planner.Tolerance{
		DistanceMM:     c.Auto.ArrivedDistanceMM,
		HeadingRadians: c.Auto.ArrivedHeadingDegrees * math.Pi / 180,
	}
}

func (c Config) Validate() error {
	if _, err := fieldframe.ParseHeadingPolicy(c.HeadingPolicy); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"tracker-period": c.TrackerPeriod,
		"planner-period": c.PlannerPeriod,
		"control-period": c.ControlPeriod,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive, not %v", name, d)
		}
	}
	return nil
}

// Parse overlays YAML data on the defaults.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Default(), errors.Wrap(err, "failed to parse config")
	}
	if err := c.Validate(); err != nil {
		return Default(), errors.Wrap(err, "invalid config")
	}
	return c, nil
}

// Load reads the config at path.  Problems with the file are logged and the
// defaults used instead; the config in use is then written to
// <path without .yaml>-in-use.yaml.
func Load(path string, log *zap.SugaredLogger) Config {
	c := Default()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		log.Warnw("Failed to read config, using defaults", "path", path, "error", err)
	} else if c, err = Parse(data); err != nil {
		log.Warnw("Bad config, using defaults", "path", path, "error", err)
	}

	log.Infow("Using config", "config", c)
	out, err := yaml.Marshal(&c)
	if err != nil {
		log.Errorw("Failed to marshal config", "error", err)
		return c
	}
	inUse := InUsePath(path)
	if err := ioutil.WriteFile(inUse, out, 0666); err != nil {
		log.Warnw("Failed to write in-use config", "path", inUse, "error", err)
	}
	return c
}

func InUsePath(path string) string {
	return strings.TrimSuffix(path, ".yaml") + "-in-use.yaml"
}
