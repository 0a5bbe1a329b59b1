package angle

import "math"

const TwoPi = 2 * math.Pi

// PlusMinusPi is an angle in radians, stored as a value in range (-π, π].
// All operations wrap their output into range.
type PlusMinusPi struct {
	float64
}

func (a PlusMinusPi) Add(b PlusMinusPi) PlusMinusPi {
	return FromRadians(a.float64 + b.float64)
}

func (a PlusMinusPi) Sub(b PlusMinusPi) PlusMinusPi {
	return FromRadians(a.float64 - b.float64)
}

func (a PlusMinusPi) AddFloat(f float64) PlusMinusPi {
	return FromRadians(a.float64 + f)
}

// Float returns the angle in radians, range (-π, π].
func (a PlusMinusPi) Float() float64 {
	return a.float64
}

func (a PlusMinusPi) Degrees() float64 {
	return a.float64 * 180 / math.Pi
}

// FromRadians converts a float of any magnitude to a PlusMinusPi by calculating
// f mod 2π and shifting into range.
func FromRadians(f float64) PlusMinusPi {
	return PlusMinusPi{Normalize(f)}
}

func FromDegrees(d float64) PlusMinusPi {
	return FromRadians(d * math.Pi / 180)
}

// Normalize wraps f into (-π, π].
func Normalize(f float64) float64 {
	d := math.Mod(f, TwoPi)
	if d <= -math.Pi {
		d += TwoPi
	} else if d > math.Pi {
		d -= TwoPi
	}
	return d
}
