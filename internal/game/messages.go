package game

import "encoding/json"

// Server -> client message types.
const (
	MsgInit             = "init"
	MsgRoundStart       = "round_start"
	MsgRoundFlying      = "round_flying"
	MsgMultiplierUpdate = "multiplier_update"
	MsgRoundCrash       = "round_crash"
	MsgRoundEnd         = "round_end"
	MsgRoundCancelled   = "round_cancelled"
	MsgBetPlaced        = "bet_placed"
	MsgCashout          = "cashout"
	MsgBetAccepted      = "bet_accepted"
	MsgCashoutResult    = "cashout_result"
	MsgBalanceUpdate    = "balance_update"
	MsgError            = "error"
	MsgPong             = "pong"
)

// Client -> server actions.
const (
	ActionBet     = "bet"
	ActionCashout = "cashout"
	ActionDeposit = "deposit"
	ActionPing    = "ping"
)

// ClientMessage is an inbound frame. Amount stays raw so a non-numeric
// value can be reported as invalid_amount rather than a parse failure.
type ClientMessage struct {
	Action      string          `json:"action"`
	Amount      json.RawMessage `json:"amount,omitempty"`
	AutoCashout float64         `json:"auto_cashout,omitempty"`
}

type InitMessage struct {
	Type    string        `json:"type"`
	Balance float64       `json:"balance"`
	History []float64     `json:"history"`
	Round   RoundSnapshot `json:"round"`
}

type RoundStartMessage struct {
	Type       string  `json:"type"`
	RoundID    uint64  `json:"round_id"`
	Duration   float64 `json:"duration"`
	Commitment string  `json:"commitment"`
}

type RoundFlyingMessage struct {
	Type    string `json:"type"`
	RoundID uint64 `json:"round_id"`
}

type MultiplierUpdateMessage struct {
	Type       string  `json:"type"`
	RoundID    uint64  `json:"round_id"`
	Multiplier float64 `json:"multiplier"`
}

type RoundCrashMessage struct {
	Type       string  `json:"type"`
	RoundID    uint64  `json:"round_id"`
	CrashPoint float64 `json:"crash_point"`
}

type RoundEndMessage struct {
	Type       string    `json:"type"`
	RoundID    uint64    `json:"round_id"`
	CrashPoint float64   `json:"crash_point"`
	History    []float64 `json:"history"`
	ServerSeed string    `json:"server_seed"`
	ClientSeed string    `json:"client_seed"`
	Nonce      int       `json:"nonce"`
}

type RoundCancelledMessage struct {
	Type    string `json:"type"`
	RoundID uint64 `json:"round_id"`
	Reason  string `json:"reason"`
}

type BetPlacedMessage struct {
	Type     string  `json:"type"`
	RoundID  uint64  `json:"round_id"`
	PlayerID string  `json:"player_id"`
	Amount   float64 `json:"amount"`
}

type CashoutMessage struct {
	Type       string  `json:"type"`
	RoundID    uint64  `json:"round_id"`
	PlayerID   string  `json:"player_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

type BetAcceptedMessage struct {
	Type    string  `json:"type"`
	RoundID uint64  `json:"round_id"`
	BetID   string  `json:"bet_id"`
	Amount  float64 `json:"amount"`
	Balance float64 `json:"balance"`
}

type CashoutResultMessage struct {
	Type       string  `json:"type"`
	RoundID    uint64  `json:"round_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

type BalanceUpdateMessage struct {
	Type    string  `json:"type"`
	Balance float64 `json:"balance"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func NewErrorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: MsgError, Reason: Reason(err), Message: err.Error()}
}
