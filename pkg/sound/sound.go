package sound

import (
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"go.uber.org/zap"
)

const (
	ModeChange = "/sounds/modechange.wav"
	Arrived    = "/sounds/arrived.wav"
	Startup    = "/sounds/startup.wav"
)

// Player plays wav files on a background goroutine.  A new sound interrupts
// the one currently playing.
type Player struct {
	log          *zap.SugaredLogger
	soundsToPlay chan string
}

func NewPlayer(log *zap.SugaredLogger) *Player {
	p := &Player{
		log:          log,
		soundsToPlay: make(chan string),
	}
	go p.loop()
	return p
}

// Play queues a sound; it gives up rather than block the caller.
func (p *Player) Play(path string) {
	defer func() {
		recover() // Don't die if the channel is already closed.
	}()
	select {
	case p.soundsToPlay <- path:
	case <-time.After(10 * time.Millisecond):
		p.log.Debugw("Timed out trying to play sound", "path", path)
	}
}

func (p *Player) Close() {
	close(p.soundsToPlay)
}

func (p *Player) drain() {
	for s := range p.soundsToPlay {
		p.log.Debugw("Unable to play", "path", s)
	}
}

func (p *Player) loop() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warnw("Sound player crashed", "panic", r)
			p.drain()
		}
	}()
	sampleRate := beep.SampleRate(44100)
	err := speaker.Init(sampleRate, sampleRate.N(time.Second/5))
	if err != nil {
		p.log.Warnw("Failed to open speaker", "error", err)
		p.drain()
		return
	}
	var ctrl *beep.Ctrl
	var s beep.StreamSeekCloser
	for soundToPlay := range p.soundsToPlay {
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			s.Close()
			s = nil
		}

		f, err := os.Open(soundToPlay)
		if err != nil {
			p.log.Debugw("Failed to open sound", "error", err)
			continue
		}
		s, _, err = wav.Decode(f)
		if err != nil {
			p.log.Debugw("Failed to decode sound", "error", err)
			s = nil
			continue
		}
		ctrl = &beep.Ctrl{Streamer: s}
		speaker.Play(ctrl)
	}
}
