package game

import (
	"fmt"
	"math"
)

const (
	// MinCrashPoint is one tick above 1.00 so a bet placed in the betting
	// window always faces at least one tick of possible growth.
	MinCrashPoint = 1.01
	MaxCrashPoint = 1000000.00

	multiplierScale = 100.0
)

// CrashPointGenerator derives a round's crash multiplier from its seed.
// Results are >= MinCrashPoint and carry two decimals.
type CrashPointGenerator interface {
	CrashPoint(seed RoundSeed) float64
}

// GeneratorFunc adapts a plain function to CrashPointGenerator.
type GeneratorFunc func(seed RoundSeed) float64

func (f GeneratorFunc) CrashPoint(seed RoundSeed) float64 { return f(seed) }

// NewCrashPointGenerator returns the named strategy; an empty name is
// exponential.
func NewCrashPointGenerator(strategy string, houseEdge float64) (CrashPointGenerator, error) {
	if houseEdge < 0 || houseEdge >= 1 {
		return nil, fmt.Errorf("house edge must be in [0,1), got %v", houseEdge)
	}
	switch strategy {
	case "", StrategyExponential:
		return Exponential{HouseEdge: houseEdge}, nil
	case StrategyTiered:
		return Tiered{HouseEdge: houseEdge, Bands: DefaultBands}, nil
	case StrategyPowerLaw:
		return PowerLaw{HouseEdge: houseEdge, Alpha: 1.2}, nil
	default:
		return nil, fmt.Errorf("unknown crash strategy %q", strategy)
	}
}

// VerifyCrashPoint recomputes a revealed round and compares it with the
// claimed crash point.
func VerifyCrashPoint(gen CrashPointGenerator, seed RoundSeed, claimed float64) bool {
	return math.Abs(gen.CrashPoint(seed)-claimed) < 0.005
}

// Exponential gives P(crash >= x) = (1-edge)/x.
type Exponential struct {
	HouseEdge float64
}

func (e Exponential) CrashPoint(seed RoundSeed) float64 {
	return e.fromUniform(seed.Float("crash"))
}

func (e Exponential) fromUniform(r float64) float64 {
	if r < e.HouseEdge {
		return MinCrashPoint
	}
	return clampCrashPoint((1 - e.HouseEdge) / (1 - r))
}

// PowerLaw gives P(crash >= x) = ((1-edge)/x)^Alpha. Alpha above 1 makes
// high multipliers rarer than Exponential.
type PowerLaw struct {
	HouseEdge float64
	Alpha     float64
}

func (p PowerLaw) CrashPoint(seed RoundSeed) float64 {
	return p.fromUniform(seed.Float("crash"))
}

func (p PowerLaw) fromUniform(r float64) float64 {
	alpha := p.Alpha
	if alpha < 1 {
		alpha = 1
	}
	return clampCrashPoint((1 - p.HouseEdge) / math.Pow(1-r, 1/alpha))
}

// Band is one tier of the Tiered strategy. Inside a band values follow
// the same 1/x law as Exponential, truncated to [Min, Max).
type Band struct {
	Name   string
	Weight float64
	Min    float64
	Max    float64
}

var DefaultBands = []Band{
	{Name: "low", Weight: 0.525, Min: 1.01, Max: 2},
	{Name: "medium", Weight: 0.404, Min: 2, Max: 10},
	{Name: "rare", Weight: 0.071, Min: 10, Max: 100},
}

// Tiered crashes instantly with probability HouseEdge, otherwise picks a
// band by weight.
type Tiered struct {
	HouseEdge float64
	Bands     []Band
}

func (t Tiered) CrashPoint(seed RoundSeed) float64 {
	return t.fromUniform(seed.Float("crash"))
}

func (t Tiered) fromUniform(r float64) float64 {
	if r < t.HouseEdge || len(t.Bands) == 0 {
		return MinCrashPoint
	}

	var total float64
	for _, b := range t.Bands {
		total += b.Weight
	}

	u := (r - t.HouseEdge) / (1 - t.HouseEdge) * total
	for i, b := range t.Bands {
		if u < b.Weight || i == len(t.Bands)-1 {
			local := math.Min(u/b.Weight, 1)
			inv := 1/b.Min - local*(1/b.Min-1/b.Max)
			return clampCrashPoint(1 / inv)
		}
		u -= b.Weight
	}
	return MinCrashPoint
}

func clampCrashPoint(v float64) float64 {
	v = floorMultiplier(v)
	if v < MinCrashPoint {
		return MinCrashPoint
	}
	if v > MaxCrashPoint {
		return MaxCrashPoint
	}
	return v
}

func floorMultiplier(v float64) float64 {
	return math.Floor(v*multiplierScale+1e-9) / multiplierScale
}

func roundMultiplier(v float64) float64 {
	return math.Round(v*multiplierScale) / multiplierScale
}
