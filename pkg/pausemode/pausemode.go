package pausemode

import (
	"context"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/hardware"
)

type PauseMode struct {
	Hardware hardware.Interface
}

func (t *PauseMode) Name() string {
	return "Pause mode"
}

func (t *PauseMode) Start(ctx context.Context) {
	t.Hardware.StopMotors()
}

func (t *PauseMode) Stop() {
}
