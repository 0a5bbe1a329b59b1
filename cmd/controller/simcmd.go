package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
)

type SimCmd struct {
	Duration   time.Duration `help:"Simulated time limit." default:"60s"`
	PrintEvery int           `help:"Print the pose every N control cycles." default:"25"`
	Fault      int           `help:"Fail every Nth sensor read (0 for never)." default:"0"`
}

func (c *SimCmd) Run(g *Context) error {
	return runSim(g.Log, g.Config, c, os.Stdout)
}

// runSim steps the simulator, tracker and auto mode in lockstep on simulated
// time, so it runs as fast as the host allows.
func runSim(log *zap.SugaredLogger, cfg config.Config, c *SimCmd, out io.Writer) error {
	sim := hardware.NewSim(log.Named("sim"), hardware.WithSimStart(cfg.Auto.Start.Pose()))
	s := newSession(log, cfg, clock.NewMock(), sim)
	if err := s.tracker.Update(); err != nil {
		return errors.Wrap(err, "initial tracker update failed")
	}
	auto := s.autoMode()
	auto.Reset()

	step := cfg.ControlPeriod
	var elapsed time.Duration
	for i := 0; elapsed < c.Duration; i++ {
		if auto.Finished() {
			fmt.Fprintf(out, "%8v done at %v (tracked %v)\n", elapsed, sim.Truth(), s.tracker.Pose())
			return nil
		}
		if c.Fault > 0 && i%c.Fault == 0 {
			sim.FailReads(1)
		}
		auto.Step()
		sim.Advance(step)
		if err := s.tracker.Update(); err != nil {
			log.Debugw("Skipped tracker update", "error", err)
		}
		elapsed += step
		if c.PrintEvery > 0 && i%c.PrintEvery == 0 {
			fmt.Fprintf(out, "%8v wp %d pose %v motion %v\n", elapsed, auto.Current(), s.tracker.Pose(), s.planner.RelativeMotion())
		}
	}
	return errors.Errorf("waypoints not reached within %v", c.Duration)
}
