package game

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrPlayerNotFound = errors.New("player not found")

// BalanceStore persists player balances. GetBalance returns
// ErrPlayerNotFound for unknown players.
type BalanceStore interface {
	GetBalance(ctx context.Context, playerID string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, playerID string, balance decimal.Decimal) error
}

// HistoryStore persists crash points. LoadHistory returns at most limit
// values, oldest first.
type HistoryStore interface {
	AppendHistory(ctx context.Context, crashPoint float64) error
	LoadHistory(ctx context.Context, limit int) ([]float64, error)
}

type Store interface {
	BalanceStore
	HistoryStore
}

// MemoryStore is a process-local Store, used when Redis is unavailable.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	history  []float64
	capacity int
}

// NewMemoryStore keeps balances and the last historyCapacity crash points
// in process memory.
func NewMemoryStore(historyCapacity int) *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]decimal.Decimal),
		capacity: historyCapacity,
	}
}

func (s *MemoryStore) GetBalance(_ context.Context, playerID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[playerID]
	if !ok {
		return decimal.Zero, ErrPlayerNotFound
	}
	return b, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, playerID string, balance decimal.Decimal) error {
	s.mu.Lock()
	s.balances[playerID] = balance
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, crashPoint float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, crashPoint)
	if s.capacity > 0 && len(s.history) > s.capacity {
		s.history = s.history[len(s.history)-s.capacity:]
	}
	return nil
}

func (s *MemoryStore) LoadHistory(_ context.Context, limit int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]float64, len(h))
	copy(out, h)
	return out, nil
}
