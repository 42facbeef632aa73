package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns every balance mutation. Each player has its own critical
// section, so operations on unrelated players never contend.
type Ledger struct {
	store    BalanceStore
	starting decimal.Decimal
	log      *zap.Logger

	accounts sync.Map // player id -> *account
}

type account struct {
	mu      sync.Mutex
	loaded  bool
	balance decimal.Decimal
}

// NewLedger creates a ledger over store. Players unknown to the store are
// opened with startingBalance.
func NewLedger(store BalanceStore, startingBalance decimal.Decimal, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:    store,
		starting: startingBalance,
		log:      log.Named("ledger"),
	}
}

func (l *Ledger) acquire(ctx context.Context, playerID string) (*account, error) {
	v, _ := l.accounts.LoadOrStore(playerID, &account{})
	acc := v.(*account)
	acc.mu.Lock()

	if acc.loaded {
		return acc, nil
	}

	balance, err := l.store.GetBalance(ctx, playerID)
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		balance = l.starting
		if err := l.store.SetBalance(ctx, playerID, balance); err != nil {
			acc.mu.Unlock()
			return nil, fmt.Errorf("open account %s: %w", playerID, err)
		}
		l.log.Info("account opened", zap.String("player", playerID), zap.String("balance", balance.String()))
	case err != nil:
		acc.mu.Unlock()
		return nil, fmt.Errorf("load balance %s: %w", playerID, err)
	}

	acc.balance = balance
	acc.loaded = true
	return acc, nil
}

func (l *Ledger) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	acc, err := l.acquire(ctx, playerID)
	if err != nil {
		return decimal.Zero, err
	}
	defer acc.mu.Unlock()
	return acc.balance, nil
}

// Debit removes amount from the player's balance, failing without any
// change when the balance is too small.
func (l *Ledger) Debit(ctx context.Context, playerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() || !WholeCents(amount) {
		return decimal.Zero, ErrInvalidAmount
	}

	acc, err := l.acquire(ctx, playerID)
	if err != nil {
		return decimal.Zero, err
	}
	defer acc.mu.Unlock()

	if amount.GreaterThan(acc.balance) {
		return acc.balance, ErrInsufficientFunds
	}
	return l.commit(ctx, acc, playerID, acc.balance.Sub(amount))
}

// Credit adds amount to the player's balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, playerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() || !WholeCents(amount) {
		return decimal.Zero, ErrInvalidAmount
	}

	acc, err := l.acquire(ctx, playerID)
	if err != nil {
		return decimal.Zero, err
	}
	defer acc.mu.Unlock()

	if amount.IsZero() {
		return acc.balance, nil
	}
	return l.commit(ctx, acc, playerID, acc.balance.Add(amount))
}

// WholeCents reports whether amount has at most two decimal places, the
// precision balances are stored with.
func WholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// commit persists next and only then publishes it; acc.mu must be held.
func (l *Ledger) commit(ctx context.Context, acc *account, playerID string, next decimal.Decimal) (decimal.Decimal, error) {
	if err := l.store.SetBalance(ctx, playerID, next); err != nil {
		return acc.balance, fmt.Errorf("store balance %s: %w", playerID, err)
	}
	acc.balance = next
	return next, nil
}
