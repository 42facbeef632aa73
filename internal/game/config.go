package game

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StrategyExponential = "exponential"
	StrategyTiered      = "tiered"
	StrategyPowerLaw    = "powerlaw"

	CurveCompound = "compound"
	CurveJitter   = "jitter"
)

// Config holds the round engine parameters.
type Config struct {
	TickInterval    time.Duration
	BettingWindow   time.Duration
	InterRoundPause time.Duration

	HouseEdge     float64
	CrashStrategy string
	CurveStrategy string

	HistoryCapacity int

	MinBet          decimal.Decimal
	MaxBet          decimal.Decimal
	StartingBalance decimal.Decimal

	CommandQueue int
	ClientBuffer int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    50 * time.Millisecond,
		BettingWindow:   5 * time.Second,
		InterRoundPause: 3 * time.Second,
		HouseEdge:       0.01,
		CrashStrategy:   StrategyExponential,
		CurveStrategy:   CurveCompound,
		HistoryCapacity: 50,
		MinBet:          decimal.NewFromInt(1),
		MaxBet:          decimal.NewFromInt(10000),
		StartingBalance: decimal.NewFromInt(1000),
		CommandQueue:    1024,
		ClientBuffer:    64,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	case c.BettingWindow <= 0:
		return fmt.Errorf("betting window must be positive, got %s", c.BettingWindow)
	case c.InterRoundPause < 0:
		return fmt.Errorf("inter-round pause must not be negative, got %s", c.InterRoundPause)
	case c.HouseEdge < 0 || c.HouseEdge >= 1:
		return fmt.Errorf("house edge must be in [0,1), got %v", c.HouseEdge)
	case c.HistoryCapacity <= 0:
		return fmt.Errorf("history capacity must be positive, got %d", c.HistoryCapacity)
	case c.MinBet.IsNegative():
		return fmt.Errorf("min bet must not be negative, got %s", c.MinBet)
	case c.MaxBet.IsPositive() && c.MaxBet.LessThan(c.MinBet):
		return fmt.Errorf("max bet %s is below min bet %s", c.MaxBet, c.MinBet)
	case c.CommandQueue <= 0:
		return fmt.Errorf("command queue must be positive, got %d", c.CommandQueue)
	}
	return nil
}
