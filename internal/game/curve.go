package game

import (
	"fmt"
	"strconv"
)

// minStep is the smallest multiplier increment; one unit of display
// precision.
const minStep = 1 / multiplierScale

// MultiplierCurve computes the multiplier after a Flying tick. It must be
// a pure function of its arguments so a round can be replayed from its seed.
type MultiplierCurve interface {
	Next(current float64, tick int, seed RoundSeed) float64
}

// NewMultiplierCurve returns the named curve; an empty name is compound.
func NewMultiplierCurve(strategy string) (MultiplierCurve, error) {
	switch strategy {
	case "", CurveCompound:
		return Compound{Rate: 0.01, Acceleration: 0.1}, nil
	case CurveJitter:
		return Jitter{MinStep: 0.01, MaxStep: 0.05}, nil
	default:
		return nil, fmt.Errorf("unknown multiplier curve %q", strategy)
	}
}

// Compound grows by Rate*(1+Acceleration*current) per tick.
type Compound struct {
	Rate         float64
	Acceleration float64
}

func (c Compound) Next(current float64, _ int, _ RoundSeed) float64 {
	return advance(current, c.Rate*(1+c.Acceleration*current))
}

// Jitter grows by a seed-derived step in [MinStep, MaxStep).
type Jitter struct {
	MinStep float64
	MaxStep float64
}

func (j Jitter) Next(current float64, tick int, seed RoundSeed) float64 {
	u := seed.Float("tick:" + strconv.Itoa(tick))
	return advance(current, j.MinStep+u*(j.MaxStep-j.MinStep))
}

// advance applies step and rounds, guaranteeing strict growth.
func advance(current, step float64) float64 {
	next := roundMultiplier(current + step)
	if floor := roundMultiplier(current + minStep); next < floor {
		return floor
	}
	return next
}
