package picobldc

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"
)

const (
	PicoAddr = 0x42
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V
	RegMot2V
	RegMot3V

	RegMot0Calib
	RegMot1Calib
	RegMot2Calib
	RegMot3Calib

	RegBattV // LSB=4mV
	RegCurrent
	RegPower

	RegTemperature // LSB = 0.01C

	// Free-running distance counters, LSB = 1/256 rotation.  They wrap, so
	// only differences between polls are meaningful.
	RegMot0Dist
	RegMot1Dist
	RegMot2Dist
	RegMot3Dist
)

const (
	BattVLSB       = 0.004
	TemperatureLSB = 0.01

	// Motor speed registers are in 1/256 rotations per second.
	SpeedLSBPerRPS = 256
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

// Motor indexes, in the same order as drive.WheelPowers.
const (
	FrontLeft = iota
	FrontRight
	BackLeft
	BackRight
	NumMotors
)

// PerMotorVal holds one value per motor, indexed by FrontLeft etc.
type PerMotorVal[T any] [NumMotors]T

// motorRegs maps our motor order onto the board's wiring.
var motorRegs = PerMotorVal[Register]{
	FrontLeft:  RegMot2V,
	FrontRight: RegMot1V,
	BackLeft:   RegMot3V,
	BackRight:  RegMot0V,
}

var distRegs = PerMotorVal[Register]{
	FrontLeft:  RegMot2Dist,
	FrontRight: RegMot1Dist,
	BackLeft:   RegMot3Dist,
	BackRight:  RegMot0Dist,
}

type Interface interface {
	SetMotorSpeeds(speeds PerMotorVal[int16]) error
	RawDistancesTraveled() (PerMotorVal[int16], error)
	Close() error
}

type i2cDevice interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

type PicoBLDC struct {
	log  *zap.SugaredLogger
	dev  i2cDevice
	open func() (i2cDevice, error)

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

var _ Interface = (*PicoBLDC)(nil)

func New(devPath string, log *zap.SugaredLogger) (*PicoBLDC, error) {
	bus := &i2c.Devfs{Dev: devPath}
	open := func() (i2cDevice, error) {
		return i2c.Open(bus, PicoAddr)
	}
	dev, err := open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Pico-BLDC on %s", devPath)
	}
	return &PicoBLDC{
		log:  log,
		dev:  dev,
		open: open,
	}, nil
}

// RPSToMotorSpeed converts a wheel speed in rotations per second to the
// register value, clamping to the int16 range.
func RPSToMotorSpeed(rps float64) int16 {
	v := rps * SpeedLSBPerRPS
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

func (p *PicoBLDC) Reset() error {
	return p.maybeConfigure(true, false)
}

func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	if timeout == 0 {
		// Disable.
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

func (p *PicoBLDC) SetMotorSpeeds(speeds PerMotorVal[int16]) error {
	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	for m, reg := range motorRegs {
		if err := p.writeReg(reg, uint16(speeds[m])); err != nil {
			return err
		}
	}
	return nil
}

func (p *PicoBLDC) RawDistancesTraveled() (dists PerMotorVal[int16], err error) {
	for m, reg := range distRegs {
		raw, err := p.readReg(reg)
		if err != nil {
			return dists, err
		}
		dists[m] = int16(raw)
	}
	return
}

func (p *PicoBLDC) Close() error {
	_ = p.Reset()
	return p.dev.Close()
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.log.Infow("Wrote to Pico-BLDC after retries", "tries", tries)
			}
			return nil
		}
		p.log.Warnw("Failed to write to Pico-BLDC", "error", err)
		time.Sleep(1 * time.Millisecond)
		_ = p.dev.Close()
		dev, openErr := p.open()
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return errors.Wrap(err, "failed to write to Pico-BLDC")
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && time.Since(p.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		calib, err := p.readReg(RegMot3Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			// Needs to be up on blocks; the wheels spin during calibration.
			p.log.Warn("Pico-BLDC not calibrated, running calibration...")
			configWord |= RegCtrlDoCalib
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	if configWord&RegCtrlDoCalib != 0 {
		if err := p.waitForCalibration(); err != nil {
			return err
		}
	}

	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = time.Now()
	p.lastConfigWord = configWord & (^RegCtrlReset) /* Reset flag is not persistent */
	return nil
}

func (p *PicoBLDC) waitForCalibration() error {
	start := time.Now()
	var lastLog time.Time
	for {
		status, err := p.Status()
		if err != nil {
			p.log.Warnw("Failed to read status register", "error", err)
		} else if status&RegStatusCalibDone != 0 {
			break
		}
		if time.Since(start) > 30*time.Second {
			return errors.New("timed out waiting for Pico-BLDC calibration")
		}
		if time.Since(lastLog) > time.Second {
			p.log.Infow("Waiting for calibration to finish...", "status", status)
			lastLog = time.Now()
		}
		time.Sleep(10 * time.Millisecond)
	}

	var words PerMotorVal[uint16]
	for r := RegMot0Calib; r <= RegMot3Calib; r++ {
		v, err := p.readReg(r)
		if err != nil {
			return err
		}
		words[r-RegMot0Calib] = v
	}
	p.log.Infow("Calibration done", "words", words)
	return nil
}

func (p *PicoBLDC) BattVolts() (float64, error) {
	raw, err := p.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float64(raw) * BattVLSB, nil
}

func (p *PicoBLDC) TemperatureC() (float64, error) {
	raw, err := p.readReg(RegTemperature)
	if err != nil {
		return 0, err
	}
	return float64(raw) * TemperatureLSB, nil
}

func (p *PicoBLDC) Status() (StatusFlag, error) {
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read Pico-BLDC register %d", reg)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// DistanceTracker turns the board's wrapping 16-bit distance counters into
// running totals.  Poll must run often enough that no counter moves by half
// its range between polls (about 64 rotations).
type DistanceTracker struct {
	counters distanceCounters

	// prev is nil until the first successful poll, which only sets the
	// baseline.
	prev   *PerMotorVal[int16]
	totals PerMotorVal[int64]
}

type distanceCounters interface {
	RawDistancesTraveled() (PerMotorVal[int16], error)
}

func NewDistanceTracker(counters distanceCounters) *DistanceTracker {
	return &DistanceTracker{counters: counters}
}

// Poll reads the counters and adds what moved since the previous poll.
func (d *DistanceTracker) Poll() error {
	raw, err := d.counters.RawDistancesTraveled()
	if err != nil {
		return errors.Wrap(err, "failed to read distance counters")
	}
	if d.prev != nil {
		for m := range raw {
			// Subtracting in int16 handles the wrap.
			d.totals[m] += int64(raw[m] - d.prev[m])
		}
	}
	d.prev = &raw
	return nil
}

// AccumulatedRotations returns the total rotations of each wheel since the
// first poll or the last Zero.
func (d *DistanceTracker) AccumulatedRotations() PerMotorVal[float64] {
	var rotations PerMotorVal[float64]
	for m, total := range d.totals {
		rotations[m] = float64(total) / SpeedLSBPerRPS
	}
	return rotations
}

// Zero clears the totals; the next poll still measures from the last reading.
func (d *DistanceTracker) Zero() {
	d.totals = PerMotorVal[int64]{}
}
