package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/bno08x"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/imu"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/picobldc"
	"github.com/tigerbot-team/tigerbot/field-controller/pkg/sound"
)

type headingSource interface {
	Heading() (float64, error)
}

// Hardware is the real robot: a Pico-BLDC driving four mecanum wheels and
// reporting their rotation, plus an IMU for heading.
type Hardware struct {
	cfg Config
	log *zap.SugaredLogger

	// Guards the I2C bus, which the motors and distance counters share.
	i2cLock   sync.Mutex
	pico      picobldc.Interface
	distances *picobldc.DistanceTracker

	bno     *bno08x.BNO08X
	heading headingSource

	sounds *sound.Player
}

var _ Interface = (*Hardware)(nil)

func New(cfg Config, log *zap.SugaredLogger) (*Hardware, error) {
	pico, err := picobldc.New(cfg.I2CDevice, log.Named("pico"))
	if err != nil {
		return nil, err
	}
	h := &Hardware{
		cfg:       cfg,
		log:       log,
		pico:      pico,
		distances: picobldc.NewDistanceTracker(pico),
		sounds:    sound.NewPlayer(log.Named("sound")),
	}

	switch cfg.HeadingSource {
	case "", "bno08x":
		h.bno = bno08x.New(cfg.IMUSerial, log.Named("bno08x"))
		h.heading = h.bno
	case "gyro":
		m, err := imu.NewSPI(cfg.GyroSPI, log.Named("gyro"))
		if err != nil {
			_ = pico.Close()
			return nil, err
		}
		if err := m.Configure(); err != nil {
			_ = pico.Close()
			return nil, err
		}
		if err := m.Calibrate(); err != nil {
			_ = pico.Close()
			return nil, err
		}
		if err := m.ResetFIFO(); err != nil {
			_ = pico.Close()
			return nil, err
		}
		h.heading = imu.NewGyroHeading(m)
	default:
		_ = pico.Close()
		return nil, errors.Errorf("unknown heading source %q", cfg.HeadingSource)
	}
	return h, nil
}

func (h *Hardware) Start(ctx context.Context) {
	if h.bno != nil {
		go h.bno.LoopReadingReports(ctx)
		// Wait for the first report so the tracker starts from a real heading.
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if _, err := h.bno.WaitForReportAfter(waitCtx, time.Time{}.Add(time.Nanosecond)); err != nil {
			h.log.Warnw("No IMU report at start-up", "error", err)
		}
	}
}

func (h *Hardware) Heading() (float64, error) {
	return h.heading.Heading()
}

func (h *Hardware) WheelDistances() (WheelDistances, error) {
	h.i2cLock.Lock()
	defer h.i2cLock.Unlock()

	if err := h.distances.Poll(); err != nil {
		return WheelDistances{}, err
	}
	r := h.distances.AccumulatedRotations()
	c := h.cfg.WheelCircumMM
	return WheelDistances{
		FrontLeft:  r[picobldc.FrontLeft] * c,
		FrontRight: r[picobldc.FrontRight] * c,
		BackLeft:   r[picobldc.BackLeft] * c,
		BackRight:  r[picobldc.BackRight] * c,
	}, nil
}

func (h *Hardware) SetWheelPowers(p drive.WheelPowers) error {
	rps := h.cfg.MaxWheelRPS
	speeds := picobldc.PerMotorVal[int16]{
		picobldc.FrontLeft:  picobldc.RPSToMotorSpeed(p.FrontLeft * rps),
		picobldc.FrontRight: picobldc.RPSToMotorSpeed(p.FrontRight * rps),
		picobldc.BackLeft:   picobldc.RPSToMotorSpeed(p.BackLeft * rps),
		picobldc.BackRight:  picobldc.RPSToMotorSpeed(p.BackRight * rps),
	}

	h.i2cLock.Lock()
	defer h.i2cLock.Unlock()
	return h.pico.SetMotorSpeeds(speeds)
}

func (h *Hardware) StopMotors() {
	if err := h.SetWheelPowers(drive.WheelPowers{}); err != nil {
		h.log.Errorw("Failed to stop motors", "error", err)
	}
}

func (h *Hardware) PlaySound(path string) {
	h.sounds.Play(path)
}

func (h *Hardware) Shutdown() {
	h.StopMotors()
	h.i2cLock.Lock()
	if err := h.pico.Close(); err != nil {
		h.log.Warnw("Failed to close Pico-BLDC", "error", err)
	}
	h.i2cLock.Unlock()
	h.sounds.Close()
}

// BattVolts reads the battery voltage from the motor controller.
func (h *Hardware) BattVolts() (float64, error) {
	board, ok := h.pico.(*picobldc.PicoBLDC)
	if !ok {
		return 0, errors.New("motor controller has no battery monitor")
	}
	h.i2cLock.Lock()
	defer h.i2cLock.Unlock()
	return board.BattVolts()
}
