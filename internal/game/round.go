package game

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Phase int32

const (
	PhaseBetting Phase = iota
	PhaseFlying
	PhaseCrashed
)

func (p Phase) String() string {
	switch p {
	case PhaseBetting:
		return "BETTING"
	case PhaseFlying:
		return "FLYING"
	case PhaseCrashed:
		return "CRASHED"
	default:
		return "UNKNOWN"
	}
}

// Bet is one player's stake in a round. CashoutMultiplier is zero until
// the bet is cashed out and never changes afterwards.
type Bet struct {
	ID                string
	PlayerID          string
	Stake             decimal.Decimal
	AutoCashout       float64
	PlacedAt          time.Time
	CashoutMultiplier float64
	CashedOutAt       time.Time

	settled bool
}

func (b *Bet) CashedOut() bool {
	return b.CashoutMultiplier > 0
}

// Payout is stake × cash-out multiplier, or zero when never cashed out.
func (b *Bet) Payout() decimal.Decimal {
	if !b.CashedOut() {
		return decimal.Zero
	}
	return b.Stake.Mul(decimal.NewFromFloat(b.CashoutMultiplier)).Round(2)
}

// Round is owned by the engine loop; everything else sees RoundSnapshot.
type Round struct {
	ID          uint64
	Phase       Phase
	Multiplier  float64
	CrashPoint  float64
	Seed        RoundSeed
	Commitment  string
	Tick        int
	StartTime   time.Time
	FlightStart time.Time
	CrashTime   time.Time
	Bets        map[string]*Bet
}

type BetView struct {
	PlayerID          string  `json:"player_id"`
	Amount            float64 `json:"amount"`
	CashoutMultiplier float64 `json:"cashout_multiplier,omitempty"`
}

// RoundSnapshot is a consistent copy of a round. The crash point and seeds
// stay hidden until the round has crashed.
type RoundSnapshot struct {
	RoundID    uint64     `json:"round_id"`
	Phase      string     `json:"phase"`
	Multiplier float64    `json:"multiplier"`
	CrashPoint float64    `json:"crash_point,omitempty"`
	Seed       *RoundSeed `json:"seed,omitempty"`
	Commitment string     `json:"commitment"`
	StartTime  time.Time  `json:"start_time"`
	Bets       []BetView  `json:"bets"`
}

func (r *Round) snapshot() RoundSnapshot {
	s := RoundSnapshot{
		RoundID:    r.ID,
		Phase:      r.Phase.String(),
		Multiplier: r.Multiplier,
		Commitment: r.Commitment,
		StartTime:  r.StartTime,
		Bets:       make([]BetView, 0, len(r.Bets)),
	}
	if r.Phase == PhaseCrashed {
		s.CrashPoint = r.CrashPoint
		seed := r.Seed
		s.Seed = &seed
	}
	for _, b := range r.Bets {
		s.Bets = append(s.Bets, BetView{
			PlayerID:          b.PlayerID,
			Amount:            b.Stake.InexactFloat64(),
			CashoutMultiplier: b.CashoutMultiplier,
		})
	}
	return s
}

// SettledBet is the archived outcome of a bet.
type SettledBet struct {
	BetID             string
	PlayerID          string
	Stake             decimal.Decimal
	CashoutMultiplier float64
	Payout            decimal.Decimal
	PlacedAt          time.Time
}

// RoundResult is the archived outcome of a settled round.
type RoundResult struct {
	RoundID    uint64
	CrashPoint float64
	Seed       RoundSeed
	Commitment string
	StartedAt  time.Time
	CrashedAt  time.Time
	Bets       []SettledBet
}

// RoundRecorder archives settled rounds.
type RoundRecorder interface {
	RecordRound(ctx context.Context, result RoundResult) error
}
