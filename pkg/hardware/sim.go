package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/fieldframe"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

var ErrSimulatedFault = errors.New("simulated sensor fault")

// Sim is a kinematic model of the mecanum chassis.  Wheels respond
// instantly and never slip, so odometry from its wheel distances is exact.
type Sim struct {
	log   *zap.SugaredLogger
	clock clock.Clock
	step  time.Duration

	// MMPerSecAtFullPower is the wheel surface speed at power 1.
	mmPerSecAtFullPower float64

	lock          sync.Mutex
	truth         pose.Pose
	headingOffset float64
	distances     WheelDistances
	powers        drive.WheelPowers
	failReads     int
	sounds        []string
}

var _ Interface = (*Sim)(nil)

type SimOption func(*Sim)

func WithSimClock(c clock.Clock) SimOption {
	return func(s *Sim) { s.clock = c }
}

func WithSimStep(d time.Duration) SimOption {
	return func(s *Sim) { s.step = d }
}

func WithSimStart(p pose.Pose) SimOption {
	return func(s *Sim) { s.truth = p }
}

// WithSimHeadingOffset makes the simulated IMU report headings offset from
// the true one, like a real IMU that was switched on facing somewhere else.
func WithSimHeadingOffset(rads float64) SimOption {
	return func(s *Sim) { s.headingOffset = rads }
}

func NewSim(log *zap.SugaredLogger, opts ...SimOption) *Sim {
	s := &Sim{
		log:                 log,
		clock:               clock.New(),
		step:                5 * time.Millisecond,
		mmPerSecAtFullPower: chassis.MaxWheelRPS * chassis.WheelCircumMM,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs the physics on the configured step until ctx is cancelled.
func (s *Sim) Start(ctx context.Context) {
	ticker := s.clock.Ticker(s.step)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Advance(s.step)
			}
		}
	}()
}

// Advance moves the model forward by dt at the current wheel powers.
func (s *Sim) Advance(dt time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	secs := dt.Seconds()
	v := s.powers.Scale(s.mmPerSecAtFullPower * secs)
	s.distances.FrontLeft += v.FrontLeft
	s.distances.FrontRight += v.FrontRight
	s.distances.BackLeft += v.BackLeft
	s.distances.BackRight += v.BackRight

	forward := (v.FrontLeft + v.FrontRight + v.BackLeft + v.BackRight) / 4
	strafe := (v.FrontLeft - v.FrontRight - v.BackLeft + v.BackRight) / 4
	turn := (v.FrontLeft - v.FrontRight + v.BackLeft - v.BackRight) / 4 / chassis.TurnRadiusMM

	mid := s.truth.Heading + turn/2
	dx, dy := fieldframe.ToFieldFrame(mid, forward, strafe)
	s.truth = pose.FromRadians(s.truth.X+dx, s.truth.Y+dy, s.truth.Heading+turn)
}

// Truth returns the simulated robot's actual pose.
func (s *Sim) Truth() pose.Pose {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.truth
}

// FailReads makes the next n sensor reads return ErrSimulatedFault.
func (s *Sim) FailReads(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failReads = n
}

func (s *Sim) maybeFail() error {
	if s.failReads > 0 {
		s.failReads--
		return ErrSimulatedFault
	}
	return nil
}

func (s *Sim) Heading() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.maybeFail(); err != nil {
		return 0, err
	}
	return angle.Normalize(s.truth.Heading + s.headingOffset), nil
}

func (s *Sim) WheelDistances() (WheelDistances, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.maybeFail(); err != nil {
		return WheelDistances{}, err
	}
	return s.distances, nil
}

func (s *Sim) SetWheelPowers(p drive.WheelPowers) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.powers = p
	return nil
}

func (s *Sim) WheelPowers() drive.WheelPowers {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.powers
}

func (s *Sim) StopMotors() {
	_ = s.SetWheelPowers(drive.WheelPowers{})
}

func (s *Sim) PlaySound(path string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.log.Debugw("Sim: PlaySound", "path", path)
	s.sounds = append(s.sounds, path)
}

func (s *Sim) SoundsPlayed() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.sounds...)
}

func (s *Sim) Shutdown() {
	s.log.Debug("Sim: Shutdown")
	s.StopMotors()
}
