package chassis

import "math"

// Mecanum chassis geometry.
const (
	WheelDiameterMM float64 = 75
	WheelCircumMM           = WheelDiameterMM * math.Pi

	BotWidthMM                    = 170
	BotFrontBackWheelCentreDistMM = 190

	// MaxWheelRPS is the wheel speed that full power maps to.
	MaxWheelRPS = 3.0
)

// TurnRadiusMM is the lever arm that converts the mecanum turn component of
// the wheel speeds into a body rotation rate: half the track plus half the
// wheelbase.
const TurnRadiusMM = BotWidthMM/2 + BotFrontBackWheelCentreDistMM/2
