package screen

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/pose"
)

const (
	Size          = 128
	DefaultDevice = "/dev/fb1"

	// Field drawing scale.
	mmPerPixel = 30
)

// Status is what the screen shows.
type Status struct {
	Mode           string
	Pose           pose.Pose
	Destination    pose.Pose
	HasDestination bool
	SlowMode       bool
	BattVolts      float64
}

// Screen holds the latest status and redraws it periodically.
type Screen struct {
	log   *zap.SugaredLogger
	clock clock.Clock

	lock   sync.Mutex
	status Status
}

func New(log *zap.SugaredLogger, clk clock.Clock) *Screen {
	return &Screen{log: log, clock: clk}
}

func (s *Screen) Update(f func(st *Status)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	f(&s.status)
}

func (s *Screen) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status
}

// Render draws st onto a Size×Size image.
func Render(st Status) image.Image {
	const S = Size
	dc := gg.NewContext(S, S)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawString(st.Mode, 2, 12)
	if st.SlowMode {
		dc.DrawString("SLOW", S-30, 12)
	}
	dc.DrawString(fmt.Sprintf("x %.0f y %.0f", st.Pose.X, st.Pose.Y), 2, 26)
	dc.DrawString(fmt.Sprintf("h %.1f", st.Pose.HeadingDegrees()), 2, 40)

	// Field view centred on the robot's start point, x down the screen.
	cx, cy := float64(S/2), float64(S/2+16)
	toScreen := func(p pose.Pose) (float64, float64) {
		return cx + p.Y/mmPerPixel, cy - p.X/mmPerPixel
	}
	if st.HasDestination {
		dx, dy := toScreen(st.Destination)
		dc.SetRGB(0, 1, 0)
		dc.DrawCircle(dx, dy, 3)
		dc.Fill()
	}
	rx, ry := toScreen(st.Pose)
	dc.SetRGB(1, 0.9, 0)
	dc.Push()
	dc.Translate(rx, ry)
	// Screen up is heading zero and clockwise is positive, matching the field.
	dc.Rotate(st.Pose.Heading - math.Pi/2)
	dc.DrawRegularPolygon(3, 0, 0, 6, 0)
	dc.Fill()
	dc.Pop()

	if st.BattVolts > 0 {
		dc.Push()
		dc.Translate(S-32, 20)
		drawPowerBar(dc, st.BattVolts)
		dc.Pop()
	}
	return dc.Image()
}

// ToRGB565 converts img to the rotated 16-bit layout that the panel expects.
func ToRGB565(img image.Image) []byte {
	const S = Size
	buf := make([]byte, S*S*2)
	for y := 0; y < S; y++ {
		for x := 0; x < S; x++ {
			r, g, b, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(S-1-y)*2+x*S*2+1] = (rb << 3) | (gb >> 3)
			buf[(S-1-y)*2+x*S*2] = bb | (gb << 5)
		}
	}
	return buf
}

// LoopUpdatingScreen redraws the framebuffer at device every interval until
// ctx is done, then blanks it.  A missing screen is not an error.
func (s *Screen) LoopUpdatingScreen(ctx context.Context, device string, interval time.Duration) {
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		s.log.Infow("Failed to open screen, ignoring", "device", device, "error", err)
		return
	}
	defer f.Close()
	s.loop(ctx, f, interval)
}

func (s *Screen) loop(ctx context.Context, f io.WriteSeeker, interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, _ = f.Seek(0, io.SeekStart)
			_, _ = f.Write(make([]byte, Size*Size*2))
			return
		case <-ticker.C:
		}
		buf := ToRGB565(Render(s.Status()))
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			s.log.Errorw("Screen failure", "error", err)
			return
		}
		for i := 0; i < Size; i++ {
			if _, err := f.Write(buf[i*Size*2 : (i+1)*Size*2]); err != nil {
				s.log.Errorw("Screen failure", "error", err)
				return
			}
		}
	}
}

const (
	minCellVoltage = 3
	maxCellVoltage = 4.2
)

func drawPowerBar(dc *gg.Context, voltage float64) {
	var cellVoltage float64
	if voltage > 9 {
		// assume the 4-cell pack
		cellVoltage = voltage / 4
	} else {
		// assume the 2-cell pack
		cellVoltage = voltage / 2
	}
	charge := (cellVoltage - minCellVoltage) / (maxCellVoltage - minCellVoltage)

	if charge < 0.1 {
		dc.SetRGBA(1, 0.2, 0, 1)
	}
	dc.DrawRectangle(0, 70, 30, 10)
	for n := 2; n < 13; n++ {
		if charge >= (float64(n) / 13) {
			dc.DrawRectangle(2, 75-float64(n)*5, 26, 3)
		}
	}
	dc.Fill()
	dc.DrawString(fmt.Sprintf("%.1fv", voltage), -2, 93)
}
