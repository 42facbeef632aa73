package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crashgame/internal/metrics"
)

const settleTimeout = 5 * time.Second

// Engine runs the round state machine. The goroutine in Run is the only
// writer of round state: bets and cash-outs reach it as commands, so their
// order relative to ticks is the order the loop handles them in.
type Engine struct {
	cfg          Config
	generator    CrashPointGenerator
	curve        MultiplierCurve
	ledger       *Ledger
	bus          Broadcaster
	history      *History
	historyStore HistoryStore
	recorder     RoundRecorder
	log          *zap.Logger
	metrics      *metrics.Metrics

	commands chan command
	stopped  chan struct{}
	started  atomic.Bool
	running  atomic.Bool

	mu    sync.RWMutex // guards round for snapshot readers
	round *Round

	lastRoundID uint64
	nonce       int
}

// Option customizes an Engine built by NewEngine.
type Option func(*Engine)

// WithGenerator replaces the crash point strategy named in the config.
func WithGenerator(g CrashPointGenerator) Option { return func(e *Engine) { e.generator = g } }

// WithCurve replaces the multiplier curve named in the config.
func WithCurve(c MultiplierCurve) Option { return func(e *Engine) { e.curve = c } }

// WithHistoryStore persists crash points and reloads them when Run starts.
func WithHistoryStore(s HistoryStore) Option { return func(e *Engine) { e.historyStore = s } }

// WithRecorder archives every settled round.
func WithRecorder(r RoundRecorder) Option { return func(e *Engine) { e.recorder = r } }

// WithLogger sets the engine logger; the default discards everything.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics records round and bet counters.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine validates cfg and builds an engine that is idle until Run is
// called.
func NewEngine(cfg Config, ledger *Ledger, bus Broadcaster, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		ledger:   ledger,
		bus:      bus,
		history:  NewHistory(cfg.HistoryCapacity),
		commands: make(chan command, cfg.CommandQueue),
		stopped:  make(chan struct{}),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("engine")

	if e.generator == nil {
		g, err := NewCrashPointGenerator(cfg.CrashStrategy, cfg.HouseEdge)
		if err != nil {
			return nil, err
		}
		e.generator = g
	}
	if e.curve == nil {
		c, err := NewMultiplierCurve(cfg.CurveStrategy)
		if err != nil {
			return nil, err
		}
		e.curve = c
	}
	return e, nil
}

type commandKind int

const (
	cmdBet commandKind = iota
	cmdCashout
)

type command struct {
	kind        commandKind
	playerID    string
	amount      decimal.Decimal
	autoCashout float64
	reply       chan commandResult
}

// errCommandFailed answers a command whose handling panicked. It maps to
// the internal_error reason.
var errCommandFailed = errors.New("command failed")

type commandResult struct {
	bet     BetReceipt
	cashout CashoutReceipt
	err     error
}

// BetReceipt describes an accepted bet and the balance left after the stake.
type BetReceipt struct {
	RoundID uint64
	BetID   string
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

type CashoutReceipt struct {
	RoundID    uint64
	Multiplier float64
	Payout     decimal.Decimal
}

// PlaceBet submits a bet for the current round. autoCashout of zero means
// no automatic cash-out.
func (e *Engine) PlaceBet(ctx context.Context, playerID string, amount decimal.Decimal, autoCashout float64) (BetReceipt, error) {
	res, err := e.submit(ctx, command{
		kind:        cmdBet,
		playerID:    playerID,
		amount:      amount,
		autoCashout: autoCashout,
	})
	if err != nil {
		return BetReceipt{}, err
	}
	return res.bet, res.err
}

// CashOut locks the current multiplier onto the player's open bet.
func (e *Engine) CashOut(ctx context.Context, playerID string) (CashoutReceipt, error) {
	res, err := e.submit(ctx, command{kind: cmdCashout, playerID: playerID})
	if err != nil {
		return CashoutReceipt{}, err
	}
	return res.cashout, res.err
}

func (e *Engine) submit(ctx context.Context, cmd command) (commandResult, error) {
	if !e.running.Load() {
		return commandResult{}, ErrEngineStopped
	}
	cmd.reply = make(chan commandResult, 1)

	select {
	case e.commands <- cmd:
	default:
		e.metrics.Rejected(Reason(ErrEngineBusy))
		return commandResult{}, ErrEngineBusy
	}

	select {
	case res := <-cmd.reply:
		return res, nil
	case <-e.stopped:
		return commandResult{}, ErrEngineStopped
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// Snapshot returns a copy of the current round.
func (e *Engine) Snapshot() (RoundSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.round == nil {
		return RoundSnapshot{}, false
	}
	return e.round.snapshot(), true
}

// History returns past crash points, oldest first.
func (e *Engine) History() []float64 {
	return e.history.Values()
}

func (e *Engine) Generator() CrashPointGenerator {
	return e.generator
}

// Run drives rounds until ctx is cancelled. A round whose loop fails is
// voided and a fresh one started.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		close(e.stopped)
	}()

	e.loadHistory(ctx)
	e.log.Info("round engine started",
		zap.Duration("tick", e.cfg.TickInterval),
		zap.Duration("betting_window", e.cfg.BettingWindow),
		zap.Float64("house_edge", e.cfg.HouseEdge))

	for {
		err := e.playRound(ctx)
		if ctx.Err() != nil {
			e.voidRound(ctx, "shutdown")
			e.log.Info("round engine stopped")
			return nil
		}
		if err != nil {
			e.log.Error("round failed, starting a fresh round", zap.Error(err))
			e.voidRound(ctx, "internal_error")
		}
	}
}

func (e *Engine) playRound(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("round loop panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("round loop panic: %v", r)
		}
	}()
	return e.runRound(ctx)
}

func (e *Engine) runRound(ctx context.Context) error {
	e.openRound()

	bettingTimer := time.NewTimer(e.cfg.BettingWindow)
	defer bettingTimer.Stop()

betting:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-bettingTimer.C:
			break betting
		case cmd := <-e.commands:
			e.handle(ctx, cmd)
		}
	}

	e.beginFlight()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

flying:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.tick() {
				break flying
			}
		case cmd := <-e.commands:
			e.handle(ctx, cmd)
		}
	}

	e.settle(ctx)

	pause := time.NewTimer(e.cfg.InterRoundPause)
	defer pause.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pause.C:
			return nil
		case cmd := <-e.commands:
			e.handle(ctx, cmd)
		}
	}
}

// handle runs one command on the loop. A panicking command still answers
// its caller before the panic reaches the round.
func (e *Engine) handle(ctx context.Context, cmd command) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.Rejected(Reason(errCommandFailed))
			cmd.reply <- commandResult{err: errCommandFailed}
			panic(r)
		}
	}()

	var res commandResult
	switch cmd.kind {
	case cmdBet:
		res.bet, res.err = e.placeBet(ctx, cmd.playerID, cmd.amount, cmd.autoCashout)
	case cmdCashout:
		res.cashout, res.err = e.cashOut(cmd.playerID)
	default:
		res.err = fmt.Errorf("unknown command %d", cmd.kind)
	}
	if res.err != nil {
		e.metrics.Rejected(Reason(res.err))
	}
	cmd.reply <- res
}

func (e *Engine) loadHistory(ctx context.Context) {
	if e.historyStore == nil {
		return
	}
	values, err := e.historyStore.LoadHistory(ctx, e.history.Capacity())
	if err != nil {
		e.log.Warn("history load failed", zap.Error(err))
		return
	}
	e.history.Load(values)
}

func (e *Engine) openRound() {
	e.nonce++
	e.lastRoundID++

	seed := NewRoundSeed(e.nonce)
	crashPoint := roundMultiplier(e.generator.CrashPoint(seed))
	if crashPoint < MinCrashPoint {
		crashPoint = MinCrashPoint
	}

	r := &Round{
		ID:         e.lastRoundID,
		Phase:      PhaseBetting,
		Multiplier: 1.0,
		CrashPoint: crashPoint,
		Seed:       seed,
		Commitment: seed.Commitment(),
		StartTime:  time.Now(),
		Bets:       make(map[string]*Bet),
	}

	e.mu.Lock()
	e.round = r
	e.mu.Unlock()

	e.log.Info("round opened", zap.Uint64("round", r.ID), zap.String("commitment", r.Commitment))
	e.log.Debug("crash point drawn", zap.Uint64("round", r.ID), zap.Float64("crash_point", crashPoint))

	e.bus.Broadcast(RoundStartMessage{
		Type:       MsgRoundStart,
		RoundID:    r.ID,
		Duration:   e.cfg.BettingWindow.Seconds(),
		Commitment: r.Commitment,
	})
}

func (e *Engine) beginFlight() {
	r := e.round

	e.mu.Lock()
	r.Phase = PhaseFlying
	r.Multiplier = 1.0
	r.FlightStart = time.Now()
	e.mu.Unlock()

	e.log.Info("round flying", zap.Uint64("round", r.ID), zap.Int("bets", len(r.Bets)))
	e.bus.Broadcast(RoundFlyingMessage{Type: MsgRoundFlying, RoundID: r.ID})
}

func (e *Engine) placeBet(ctx context.Context, playerID string, amount decimal.Decimal, autoCashout float64) (BetReceipt, error) {
	r := e.round
	if r == nil || r.Phase != PhaseBetting {
		return BetReceipt{}, ErrBettingClosed
	}
	if _, exists := r.Bets[playerID]; exists {
		return BetReceipt{}, ErrDuplicateBet
	}
	if !e.validStake(amount) {
		return BetReceipt{}, ErrInvalidAmount
	}
	if autoCashout != 0 {
		if math.IsNaN(autoCashout) || autoCashout < MinCrashPoint || autoCashout > MaxCrashPoint {
			return BetReceipt{}, ErrInvalidAutoCashout
		}
		autoCashout = roundMultiplier(autoCashout)
	}

	balance, err := e.ledger.Debit(ctx, playerID, amount)
	if err != nil {
		return BetReceipt{}, err
	}

	bet := &Bet{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		Stake:       amount,
		AutoCashout: autoCashout,
		PlacedAt:    time.Now(),
	}

	e.mu.Lock()
	r.Bets[playerID] = bet
	e.mu.Unlock()

	e.metrics.BetPlaced(amount.InexactFloat64())
	e.log.Info("bet placed",
		zap.Uint64("round", r.ID),
		zap.String("player", playerID),
		zap.String("amount", amount.String()),
		zap.Float64("auto_cashout", autoCashout))

	e.bus.Broadcast(BetPlacedMessage{
		Type:     MsgBetPlaced,
		RoundID:  r.ID,
		PlayerID: playerID,
		Amount:   amount.InexactFloat64(),
	})

	return BetReceipt{RoundID: r.ID, BetID: bet.ID, Amount: amount, Balance: balance}, nil
}

func (e *Engine) validStake(amount decimal.Decimal) bool {
	if !amount.IsPositive() || !WholeCents(amount) || amount.LessThan(e.cfg.MinBet) {
		return false
	}
	return !e.cfg.MaxBet.IsPositive() || !amount.GreaterThan(e.cfg.MaxBet)
}

func (e *Engine) cashOut(playerID string) (CashoutReceipt, error) {
	r := e.round
	if r == nil {
		return CashoutReceipt{}, ErrNoActiveBet
	}
	bet, ok := r.Bets[playerID]
	if !ok {
		return CashoutReceipt{}, ErrNoActiveBet
	}
	if bet.CashedOut() {
		return CashoutReceipt{}, ErrAlreadyCashedOut
	}
	if r.Phase != PhaseFlying {
		return CashoutReceipt{}, ErrRoundNotFlying
	}

	e.mu.Lock()
	bet.CashoutMultiplier = r.Multiplier
	bet.CashedOutAt = time.Now()
	e.mu.Unlock()

	receipt := CashoutReceipt{RoundID: r.ID, Multiplier: bet.CashoutMultiplier, Payout: bet.Payout()}
	e.announceCashout(r, bet, receipt)
	return receipt, nil
}

func (e *Engine) announceCashout(r *Round, bet *Bet, receipt CashoutReceipt) {
	e.metrics.CashedOut()
	e.log.Info("cashed out",
		zap.Uint64("round", r.ID),
		zap.String("player", bet.PlayerID),
		zap.Float64("multiplier", receipt.Multiplier),
		zap.String("payout", receipt.Payout.String()))

	e.bus.Broadcast(CashoutMessage{
		Type:       MsgCashout,
		RoundID:    r.ID,
		PlayerID:   bet.PlayerID,
		Multiplier: receipt.Multiplier,
		Payout:     receipt.Payout.InexactFloat64(),
	})
}

// tick advances the multiplier one step and reports whether the round
// crashed on it.
func (e *Engine) tick() bool {
	r := e.round

	next := e.curve.Next(r.Multiplier, r.Tick+1, r.Seed)
	if next <= r.Multiplier {
		next = roundMultiplier(r.Multiplier + minStep)
	}

	e.mu.Lock()
	r.Tick++
	if next >= r.CrashPoint {
		r.Multiplier = r.CrashPoint
		r.Phase = PhaseCrashed
		r.CrashTime = time.Now()
		e.mu.Unlock()

		e.log.Info("round crashed",
			zap.Uint64("round", r.ID),
			zap.Float64("crash_point", r.CrashPoint),
			zap.Int("ticks", r.Tick))
		e.bus.Broadcast(RoundCrashMessage{Type: MsgRoundCrash, RoundID: r.ID, CrashPoint: r.CrashPoint})
		return true
	}

	r.Multiplier = next
	var auto []*Bet
	for _, bet := range r.Bets {
		if bet.AutoCashout > 0 && !bet.CashedOut() && next >= bet.AutoCashout {
			bet.CashoutMultiplier = bet.AutoCashout
			bet.CashedOutAt = time.Now()
			auto = append(auto, bet)
		}
	}
	e.mu.Unlock()

	e.bus.Broadcast(MultiplierUpdateMessage{Type: MsgMultiplierUpdate, RoundID: r.ID, Multiplier: next})

	for _, bet := range auto {
		receipt := CashoutReceipt{RoundID: r.ID, Multiplier: bet.CashoutMultiplier, Payout: bet.Payout()}
		e.announceCashout(r, bet, receipt)
		e.bus.SendToPlayer(bet.PlayerID, CashoutResultMessage{
			Type:       MsgCashoutResult,
			RoundID:    r.ID,
			Multiplier: receipt.Multiplier,
			Payout:     receipt.Payout.InexactFloat64(),
		})
	}
	return false
}

// settle pays every cashed-out bet, records the crash point and announces
// the end of the round. Bets never cashed out pay nothing.
func (e *Engine) settle(ctx context.Context) {
	r := e.round
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	result := RoundResult{
		RoundID:    r.ID,
		CrashPoint: r.CrashPoint,
		Seed:       r.Seed,
		Commitment: r.Commitment,
		StartedAt:  r.StartTime,
		CrashedAt:  r.CrashTime,
		Bets:       make([]SettledBet, 0, len(r.Bets)),
	}

	for _, bet := range r.Bets {
		if bet.settled {
			continue
		}
		bet.settled = true

		payout := bet.Payout()
		result.Bets = append(result.Bets, SettledBet{
			BetID:             bet.ID,
			PlayerID:          bet.PlayerID,
			Stake:             bet.Stake,
			CashoutMultiplier: bet.CashoutMultiplier,
			Payout:            payout,
			PlacedAt:          bet.PlacedAt,
		})

		if !payout.IsPositive() {
			e.log.Debug("bet lost",
				zap.Uint64("round", r.ID),
				zap.String("player", bet.PlayerID),
				zap.String("stake", bet.Stake.String()))
			continue
		}

		balance, err := e.ledger.Credit(ctx, bet.PlayerID, payout)
		if err != nil {
			e.log.Error("payout credit failed",
				zap.Uint64("round", r.ID),
				zap.String("player", bet.PlayerID),
				zap.String("payout", payout.String()),
				zap.Error(err))
			continue
		}
		e.metrics.PaidOut(payout.InexactFloat64())
		e.bus.SendToPlayer(bet.PlayerID, BalanceUpdateMessage{Type: MsgBalanceUpdate, Balance: balance.InexactFloat64()})
	}

	e.history.Push(r.CrashPoint)
	if e.historyStore != nil {
		if err := e.historyStore.AppendHistory(ctx, r.CrashPoint); err != nil {
			e.log.Warn("history append failed", zap.Error(err))
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordRound(ctx, result); err != nil {
			e.log.Warn("round archive failed", zap.Uint64("round", r.ID), zap.Error(err))
		}
	}
	e.metrics.RoundSettled(r.CrashPoint)

	e.bus.Broadcast(RoundEndMessage{
		Type:       MsgRoundEnd,
		RoundID:    r.ID,
		CrashPoint: r.CrashPoint,
		History:    e.history.Values(),
		ServerSeed: r.Seed.ServerSeed,
		ClientSeed: r.Seed.ClientSeed,
		Nonce:      r.Seed.Nonce,
	})
	e.log.Info("round settled", zap.Uint64("round", r.ID), zap.Int("bets", len(result.Bets)))
}

// voidRound refunds the stake of every bet the current round has not
// settled. It is a no-op for a fully settled round.
func (e *Engine) voidRound(ctx context.Context, reason string) {
	r := e.round
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var pending []*Bet
	for _, bet := range r.Bets {
		if !bet.settled {
			pending = append(pending, bet)
		}
	}
	if len(pending) == 0 && r.Phase == PhaseCrashed {
		return
	}

	e.mu.Lock()
	r.Phase = PhaseCrashed
	e.mu.Unlock()

	for _, bet := range pending {
		bet.settled = true
		balance, err := e.ledger.Credit(ctx, bet.PlayerID, bet.Stake)
		if err != nil {
			e.log.Error("refund failed",
				zap.Uint64("round", r.ID),
				zap.String("player", bet.PlayerID),
				zap.String("stake", bet.Stake.String()),
				zap.Error(err))
			continue
		}
		e.bus.SendToPlayer(bet.PlayerID, BalanceUpdateMessage{Type: MsgBalanceUpdate, Balance: balance.InexactFloat64()})
	}

	e.metrics.RoundVoided()
	e.log.Warn("round voided", zap.Uint64("round", r.ID), zap.String("reason", reason), zap.Int("refunds", len(pending)))
	e.bus.Broadcast(RoundCancelledMessage{Type: MsgRoundCancelled, RoundID: r.ID, Reason: reason})
}
