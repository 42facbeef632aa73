package game

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAutoCashout = errors.New("invalid auto cashout")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrBettingClosed      = errors.New("betting is closed")
	ErrDuplicateBet       = errors.New("bet already placed this round")
	ErrRoundNotFlying     = errors.New("round is not flying")
	ErrNoActiveBet        = errors.New("no active bet")
	ErrAlreadyCashedOut   = errors.New("already cashed out")
	ErrConnectionLost     = errors.New("connection lost")
	ErrEngineBusy         = errors.New("engine busy")
	ErrEngineStopped      = errors.New("engine stopped")
	ErrInvalidMessage     = errors.New("invalid message")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidAutoCashout, "invalid_auto_cashout"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrBettingClosed, "betting_closed"},
	{ErrDuplicateBet, "duplicate_bet"},
	{ErrRoundNotFlying, "round_not_flying"},
	{ErrNoActiveBet, "no_active_bet"},
	{ErrAlreadyCashedOut, "already_cashed_out"},
	{ErrConnectionLost, "connection_lost"},
	{ErrEngineBusy, "engine_busy"},
	{ErrEngineStopped, "engine_stopped"},
	{ErrInvalidMessage, "invalid_message"},
}

// Reason maps an error to the code sent to clients in error messages.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal_error"
}
