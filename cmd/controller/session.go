package main

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/automode"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/planner"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/teleopmode"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/tracker"
)

// session ties the pose tracker and path planner to one piece of hardware.
type session struct {
	log     *zap.SugaredLogger
	cfg     config.Config
	clock   clock.Clock
	hw      hardware.Interface
	tracker *tracker.Tracker
	planner *planner.Planner
}

func newSession(log *zap.SugaredLogger, cfg config.Config, clk clock.Clock, hw hardware.Interface) *session {
	tr := tracker.New(hw,
		tracker.WithLogger(log.Named("tracker")),
		tracker.WithClock(clk),
		tracker.WithPeriod(cfg.TrackerPeriod),
		tracker.WithInitialPose(cfg.Auto.Start.Pose()),
	)
	pl := planner.New(tr,
		planner.WithLogger(log.Named("planner")),
		planner.WithClock(clk),
		planner.WithPeriod(cfg.PlannerPeriod),
		planner.WithHeadingPolicy(cfg.Policy()),
	)
	return &session{
		log:     log,
		cfg:     cfg,
		clock:   clk,
		hw:      hw,
		tracker: tr,
		planner: pl,
	}
}

func (s *session) start(ctx context.Context) {
	s.hw.Start(ctx)
	s.tracker.Start(ctx)
	s.planner.Start(ctx)
}

func (s *session) stop() {
	s.planner.Stop()
	s.tracker.Stop()
	s.log.Info("Zeroing motors for shut down")
	s.hw.Shutdown()
}

func (s *session) autoMode() *automode.AutoMode {
	var waypoints []pose.Pose
	for _, wp := range s.cfg.Auto.Waypoints {
		waypoints = append(waypoints, wp.Pose())
	}
	return automode.New(s.log.Named("auto"), s.clock, s.hw, s.planner, automode.Settings{
		Speed:       s.cfg.AutoSpeed,
		ForwardGain: s.cfg.Auto.ForwardGain,
		StrafeGain:  s.cfg.Auto.StrafeGain,
		TurnGain:    s.cfg.Auto.TurnGain,
		Tolerance:   s.cfg.Tolerance(),
		Waypoints:   waypoints,
		Period:      s.cfg.ControlPeriod,
	})
}

func (s *session) teleopMode() *teleopmode.TeleopMode {
	return teleopmode.New(s.log.Named("teleop"), s.clock, s.hw, s.tracker, teleopmode.Settings{
		NormalSpeed:  s.cfg.NormalSpeed,
		SlowSpeed:    s.cfg.SlowSpeed,
		StickExpo:    s.cfg.StickExpo,
		FieldCentric: s.cfg.FieldCentric,
		Period:       s.cfg.ControlPeriod,
	})
}
