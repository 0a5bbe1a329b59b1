package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/angle"
)

const DefaultSerialDevice = "/dev/ttyAMA0"

const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

// StaleAfter is how old the last report can get before Heading reports an
// error.
const StaleAfter = 50 * ReportInterval

const packetLen = 19

var ErrNoReport = errors.New("no IMU report received yet")

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16
	Pitch  int16
	Roll   int16
	XAccel int16
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

func (i IMUReport) YawRadians() float64 {
	return float64(i.Yaw) / 100.0 * math.Pi / 180
}

func (i IMUReport) PitchRadians() float64 {
	return float64(i.Pitch) / 100.0 * math.Pi / 180
}

func (i IMUReport) RollRadians() float64 {
	return float64(i.Roll) / 100.0 * math.Pi / 180
}

// RobotYaw converts the sensor's Euler angles into the robot's heading.  The
// board is mounted on its side with its Z axis pointing out of the front of
// the robot, so the sensor's own yaw is not the robot's yaw.
func (i IMUReport) RobotYaw() angle.PlusMinusPi {
	yaw, pitch, roll := i.YawRadians(), i.PitchRadians(), i.RollRadians()

	x0 := r3.Vec{X: 1}
	y0 := r3.Vec{Y: 1}
	z0 := r3.Vec{Z: 1}

	// Rotate the axes yaw radians around Z.
	x1 := r3.Rotate(x0, yaw, z0)
	y1 := r3.Rotate(y0, yaw, z0)
	z1 := z0

	// Rotate pitch radians around the *new* Y.
	x2 := r3.Rotate(x1, pitch, y1)
	z2 := r3.Rotate(z1, pitch, y1)

	// Rotate roll radians around the new X.
	z3 := r3.Rotate(z2, roll, x2)

	// The x and y components of the final Z vector give the direction the
	// front of the robot is pointing.
	return angle.FromRadians(math.Atan2(z3.X, z3.Y))
}

type Interface interface {
	CurrentReport() IMUReport
	WaitForReportAfter(ctx context.Context, t time.Time) (IMUReport, error)
}

type BNO08X struct {
	device string
	log    *zap.SugaredLogger

	lock       sync.Mutex
	cond       *sync.Cond
	lastReport IMUReport
}

var _ Interface = (*BNO08X)(nil)

func New(device string, log *zap.SugaredLogger) *BNO08X {
	if device == "" {
		device = DefaultSerialDevice
	}
	b := &BNO08X{device: device, log: log}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

// Heading returns the robot yaw from the most recent report, in radians.
func (b *BNO08X) Heading() (float64, error) {
	r := b.CurrentReport()
	if r.Time.IsZero() {
		return 0, ErrNoReport
	}
	if age := time.Since(r.Time); age > StaleAfter {
		return 0, errors.Errorf("IMU report is stale (%v old)", age)
	}
	return r.RobotYaw().Float(), nil
}

func (b *BNO08X) WaitForReportAfter(ctx context.Context, t time.Time) (IMUReport, error) {
	// Wake the cond if the context is cancelled while we wait.
	stop := context.AfterFunc(ctx, func() {
		b.lock.Lock()
		b.cond.Broadcast()
		b.lock.Unlock()
	})
	defer stop()

	b.lock.Lock()
	defer b.lock.Unlock()
	startTime := time.Now()
	for b.lastReport.Time.Before(t) {
		if ctx.Err() != nil {
			return b.lastReport, ctx.Err()
		}
		b.cond.Wait()
		if time.Since(startTime) > time.Second {
			return b.lastReport, errors.New("IMU hasn't responded for >1s")
		}
	}
	return b.lastReport, nil
}

func (b *BNO08X) LoopReadingReports(ctx context.Context) {
	defer b.cond.Broadcast()
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		b.log.Warnw("BNO08X loop stopped; will retry", "error", err)
		time.Sleep(100 * time.Millisecond)
		b.cond.Broadcast()
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: 115200,
	}
	s, err := serial.Open(b.device, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", b.device)
	}
	defer s.Close()

	return b.readPackets(ctx, bufio.NewReader(s))
}

func (b *BNO08X) readPackets(ctx context.Context, br *bufio.Reader) error {
resync:
	b.log.Debug("BNO08X Resync...")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf, err := br.Peek(2)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		if bytes.Equal(buf, []byte{0xaa, 0xaa}) {
			break
		}
		_, err = br.Discard(1)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
	}
	b.log.Debug("BNO08X: In sync with packet stream.")

	buf := make([]byte, packetLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.ReadAtLeast(br, buf, packetLen)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		report, err := parsePacket(buf)
		if err != nil {
			b.log.Warnw("BNO08X: bad packet", "error", err)
			goto resync
		}
		report.Time = time.Now()
		b.setReport(report)
	}
}

func parsePacket(buf []byte) (IMUReport, error) {
	var report IMUReport
	if len(buf) != packetLen {
		return report, errors.Errorf("packet length %d != %d", len(buf), packetLen)
	}
	if !bytes.Equal(buf[:2], []byte{0xaa, 0xaa}) {
		return report, errors.New("lost sync")
	}
	var checksum uint8
	for _, b := range buf[2 : packetLen-1] {
		checksum += b
	}
	if buf[packetLen-1] != checksum {
		return report, errors.Errorf("bad checksum %x != %x", buf[packetLen-1], checksum)
	}
	report.Index = buf[2]
	report.Yaw = int16(binary.LittleEndian.Uint16(buf[3:5]))
	report.Pitch = int16(binary.LittleEndian.Uint16(buf[5:7]))
	report.Roll = int16(binary.LittleEndian.Uint16(buf[7:9]))
	report.XAccel = int16(binary.LittleEndian.Uint16(buf[9:11]))
	report.YAccel = int16(binary.LittleEndian.Uint16(buf[11:13]))
	report.ZAccel = int16(binary.LittleEndian.Uint16(buf[13:15]))
	return report, nil
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lastReport = report
	b.cond.Broadcast()
}
