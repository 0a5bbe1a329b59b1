package main

import (
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
)

type SensorsCmd struct {
	Interval time.Duration `help:"How often to print." default:"200ms"`
	Count    int           `help:"Stop after this many lines (0 to run until interrupted)." default:"0"`
	Sim      bool          `help:"Read the simulator instead of the real hardware."`
}

func (c *SensorsCmd) Run(g *Context) error {
	hw, err := openHardware(g, c.Sim)
	if err != nil {
		return err
	}
	clk := clock.New()
	s := newSession(g.Log, g.Config, clk, hw)
	s.start(g.Ctx)
	defer s.stop()

	ticker := clk.Ticker(c.Interval)
	defer ticker.Stop()
	for n := 0; c.Count == 0 || n < c.Count; n++ {
		select {
		case <-g.Ctx.Done():
			return nil
		case <-ticker.C:
		}
		heading, herr := hw.Heading()
		dists, derr := hw.WheelDistances()
		fmt.Fprintf(os.Stdout, "pose %v  raw heading %.3f (%v)  wheels %v (%v)\n",
			s.tracker.Pose(), heading, herr, dists, derr)
	}
	return nil
}
