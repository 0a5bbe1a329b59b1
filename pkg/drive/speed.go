package drive

import "sync"

const (
	DefaultNormalSpeed = 0.7
	DefaultSlowSpeed   = 0.3
)

// SpeedSelector toggles between a normal and a slow speed cap.  The toggle
// is edge-triggered: holding the button down only flips the mode once.
type SpeedSelector struct {
	lock sync.Mutex

	normal, slow float64
	slowMode     bool
	pressed      bool
}

func NewSpeedSelector(normal, slow float64) *SpeedSelector {
	return &SpeedSelector{normal: normal, slow: slow}
}

// OnButton feeds the current button state; it returns true when the mode
// changed.
func (s *SpeedSelector) OnButton(down bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !down {
		s.pressed = false
		return false
	}
	if s.pressed {
		return false
	}
	s.pressed = true
	s.slowMode = !s.slowMode
	return true
}

func (s *SpeedSelector) SlowMode() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.slowMode
}

func (s *SpeedSelector) MaxSpeed() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.slowMode {
		return s.slow
	}
	return s.normal
}
