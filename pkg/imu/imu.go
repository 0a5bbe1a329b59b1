package imu

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const (
	RegSampleRateDiv = 25
	RegConfig        = 26
	RegGyroConf      = 27
	RegGyroYOffset   = 21
	RegFIFOEnable    = 35
	RegGyroY         = 69 // 16 bits
	RegUserCtl       = 106
	RegFIFOCount     = 114 // 16 bits
	RegFIFORW        = 116 // n-bytes

	GyroRange = 2 // 1000 dps

	// With the DLPF on, the gyro samples at 1kHz and we divide by 10.
	SampleInterval = 10 * time.Millisecond
)

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
}

// IMU drives an MPU-series gyro over SPI.  Only the yaw axis is used.
type IMU struct {
	dev port
	log *zap.SugaredLogger
}

func NewSPI(deviceFile string, log *zap.SugaredLogger) (*IMU, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialise periph")
	}

	// Use spireg SPI port registry to find the SPI bus.
	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %s", deviceFile)
	}

	// Convert the spi.Port into a spi.Conn so it can be used for communication.
	c, err := p.Connect(physic.KiloHertz*1000, spi.Mode3, 8)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to SPI port")
	}

	return &IMU{
		dev: &SPIAdapter{c: c},
		log: log,
	}, nil
}

type SPIAdapter struct {
	c spi.Conn

	r, w []byte
}

const W = 0x00
const R = 0x80

func (s *SPIAdapter) ReadReg(reg byte, buf []byte) error {
	// The read and write buffers need to be as long as the whole transaction.
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = R | reg
	err := s.c.Tx(s.w[:bufLen], s.r[:bufLen])
	if err != nil {
		return err
	}
	// The response will come back only after the first byte is sent, ignore the first byte that we read.
	copy(buf, s.r[1:])
	return nil
}

func (s *SPIAdapter) WriteReg(reg byte, buf []byte) error {
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = W | reg
	copy(s.w[1:], buf)
	return s.c.Tx(s.w[:bufLen], s.r[:bufLen])
}

func (s *SPIAdapter) ensureBuf(l int) {
	if len(s.r) < l {
		s.w = make([]byte, l)
		s.r = make([]byte, l)
	} else {
		for i := 0; i < l; i++ {
			s.w[i] = 0
			s.r[i] = 0
		}
	}
}

func (m *IMU) Configure() error {
	for _, w := range []struct {
		reg byte
		val byte
	}{
		{RegUserCtl, 0x10},           // Disable I2C.
		{RegGyroConf, GyroRange << 3}, // Gyro range.
		{RegConfig, 1},               // DLPF Fs=1KHz.
		{RegSampleRateDiv, 9},        // Divide output rate.
		{RegFIFOEnable, 1 << 5},      // Gyro Y to FIFO.
	} {
		if err := m.dev.WriteReg(w.reg, []byte{w.val}); err != nil {
			return errors.Wrapf(err, "failed to write IMU register %d", w.reg)
		}
	}
	return nil
}

func (m *IMU) RadiansPerLSB() float64 {
	return 1000.0 / math.MaxInt16 * math.Pi / 180
}

// Calibrate measures the gyro's zero offset with the robot stationary and
// programs it into the offset register.
func (m *IMU) Calibrate() error {
	m.log.Info("Calibrating gyro")
	if err := m.dev.WriteReg(RegGyroYOffset, []byte{0, 0}); err != nil {
		return err
	}

	for i := 0; i < 100; i++ {
		if _, err := m.ReadGyroY(); err != nil {
			return err
		}
	}

	var sum float64
	const n = 1000
	for i := 0; i < n; i++ {
		y, err := m.ReadGyroY()
		if err != nil {
			return err
		}
		sum -= float64(y)
	}
	offset := sum / n
	scaledOffset := int16(offset / 4 * math.Pow(2, GyroRange))
	m.log.Infow("Gyro calibrated", "offset", offset, "scaledOffset", scaledOffset)
	return m.dev.WriteReg(RegGyroYOffset, []byte{byte(scaledOffset >> 8), byte(scaledOffset)})
}

func (m *IMU) ReadGyroY() (int16, error) {
	return m.read16(RegGyroY)
}

func (m *IMU) ResetFIFO() error {
	return m.dev.WriteReg(RegUserCtl, []byte{1<<6 | 1<<2})
}

// ReadFIFO drains the yaw-rate samples queued since the last call.
func (m *IMU) ReadFIFO() ([]int16, error) {
	count, err := m.read16(RegFIFOCount)
	if err != nil {
		return nil, err
	}
	count &= 0xfff
	if count > 512 {
		count = 512
	}
	count &^= 1
	if count == 0 {
		return nil, nil
	}
	var buf [512]byte
	if err := m.dev.ReadReg(RegFIFORW, buf[:count]); err != nil {
		return nil, err
	}
	result := make([]int16, count/2)
	for i := range result {
		result[i] = int16(buf[i*2])<<8 | int16(buf[i*2+1])
	}
	return result, nil
}

func (m *IMU) read16(reg byte) (int16, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(reg, buf[:]); err != nil {
		return 0, errors.Wrapf(err, "failed to read IMU register %d", reg)
	}
	return int16(buf[0])<<8 | int16(buf[1]), nil
}

// GyroHeading integrates the gyro's yaw rate into a heading.  Unlike the
// BNO08X it drifts, but it needs no serial port.
type GyroHeading struct {
	imu *IMU

	lock    sync.Mutex
	heading float64
}

func NewGyroHeading(imu *IMU) *GyroHeading {
	return &GyroHeading{imu: imu}
}

func (g *GyroHeading) Heading() (float64, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	samples, err := g.imu.ReadFIFO()
	if err != nil {
		return g.heading, err
	}
	for _, yaw := range samples {
		// The gyro reads positive anti-clockwise.
		g.heading -= SampleInterval.Seconds() * float64(yaw) * g.imu.RadiansPerLSB()
	}
	return g.heading, nil
}
