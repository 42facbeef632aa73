package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sender delivers a message to a single connection.
type Sender interface {
	Send(clientID string, message interface{}) error
}

// Protocol turns inbound client frames into engine and ledger calls and
// answers the originating connection. It never touches round state itself.
type Protocol struct {
	engine *Engine
	ledger *Ledger
	out    Sender
	log    *zap.Logger
}

// NewProtocol builds a protocol that answers through out.
func NewProtocol(engine *Engine, ledger *Ledger, out Sender, log *zap.Logger) *Protocol {
	if log == nil {
		log = zap.NewNop()
	}
	return &Protocol{engine: engine, ledger: ledger, out: out, log: log.Named("protocol")}
}

// Welcome sends the init message to a freshly registered connection.
func (p *Protocol) Welcome(ctx context.Context, clientID, playerID string) error {
	balance, err := p.ledger.Balance(ctx, playerID)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	round, _ := p.engine.Snapshot()
	return p.out.Send(clientID, InitMessage{
		Type:    MsgInit,
		Balance: balance.InexactFloat64(),
		History: p.engine.History(),
		Round:   round,
	})
}

// Handle processes one inbound frame. Rejections are answered with an
// error message and never affect other players.
func (p *Protocol) Handle(ctx context.Context, clientID, playerID string, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.reply(clientID, NewErrorMessage(ErrInvalidMessage))
		return
	}

	switch msg.Action {
	case ActionBet:
		p.bet(ctx, clientID, playerID, msg)
	case ActionCashout:
		p.cashout(ctx, clientID, playerID)
	case ActionDeposit:
		p.deposit(ctx, clientID, playerID, msg)
	case ActionPing:
		p.reply(clientID, struct {
			Type string `json:"type"`
		}{Type: MsgPong})
	default:
		p.reply(clientID, NewErrorMessage(fmt.Errorf("%w: unknown action %q", ErrInvalidMessage, msg.Action)))
	}
}

func (p *Protocol) bet(ctx context.Context, clientID, playerID string, msg ClientMessage) {
	amount, err := ParseAmount(msg.Amount)
	if err != nil {
		p.reply(clientID, NewErrorMessage(err))
		return
	}
	receipt, err := p.engine.PlaceBet(ctx, playerID, amount, msg.AutoCashout)
	if err != nil {
		p.log.Debug("bet rejected", zap.String("player", playerID), zap.Error(err))
		p.reply(clientID, NewErrorMessage(err))
		return
	}
	p.reply(clientID, BetAcceptedMessage{
		Type:    MsgBetAccepted,
		RoundID: receipt.RoundID,
		BetID:   receipt.BetID,
		Amount:  receipt.Amount.InexactFloat64(),
		Balance: receipt.Balance.InexactFloat64(),
	})
	p.reply(clientID, BalanceUpdateMessage{Type: MsgBalanceUpdate, Balance: receipt.Balance.InexactFloat64()})
}

func (p *Protocol) cashout(ctx context.Context, clientID, playerID string) {
	receipt, err := p.engine.CashOut(ctx, playerID)
	if err != nil {
		p.log.Debug("cashout rejected", zap.String("player", playerID), zap.Error(err))
		p.reply(clientID, NewErrorMessage(err))
		return
	}
	p.reply(clientID, CashoutResultMessage{
		Type:       MsgCashoutResult,
		RoundID:    receipt.RoundID,
		Multiplier: receipt.Multiplier,
		Payout:     receipt.Payout.InexactFloat64(),
	})
}

func (p *Protocol) deposit(ctx context.Context, clientID, playerID string, msg ClientMessage) {
	amount, err := ParseAmount(msg.Amount)
	if err == nil && !amount.IsPositive() {
		err = ErrInvalidAmount
	}
	if err != nil {
		p.reply(clientID, NewErrorMessage(err))
		return
	}
	balance, err := p.ledger.Credit(ctx, playerID, amount)
	if err != nil {
		p.log.Warn("deposit failed", zap.String("player", playerID), zap.Error(err))
		p.reply(clientID, NewErrorMessage(err))
		return
	}
	p.reply(clientID, BalanceUpdateMessage{Type: MsgBalanceUpdate, Balance: balance.InexactFloat64()})
}

func (p *Protocol) reply(clientID string, message interface{}) {
	if err := p.out.Send(clientID, message); err != nil {
		p.log.Debug("reply dropped", zap.String("client", clientID), zap.Error(err))
	}
}

// ParseAmount accepts a JSON number or numeric string with at most two
// decimal places. Anything else, including a missing amount, is
// ErrInvalidAmount.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	var amount decimal.Decimal
	if err := json.Unmarshal(raw, &amount); err != nil || !WholeCents(amount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}
