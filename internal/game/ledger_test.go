package game

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestLedger() (*Ledger, *MemoryStore) {
	store := NewMemoryStore(10)
	return NewLedger(store, dec("1000"), nil), store
}

func TestLedger_OpensUnknownPlayer(t *testing.T) {
	ledger, store := newTestLedger()
	ctx := context.Background()

	balance, err := ledger.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if !balance.Equal(dec("1000")) {
		t.Errorf("Balance() = %s, want 1000", balance)
	}

	stored, err := store.GetBalance(ctx, "alice")
	if err != nil || !stored.Equal(dec("1000")) {
		t.Errorf("store balance = %s, %v; want 1000", stored, err)
	}
}

func TestLedger_LoadsExistingBalance(t *testing.T) {
	ledger, store := newTestLedger()
	ctx := context.Background()
	store.SetBalance(ctx, "bob", dec("42.50"))

	balance, err := ledger.Balance(ctx, "bob")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if !balance.Equal(dec("42.5")) {
		t.Errorf("Balance() = %s, want 42.5", balance)
	}
}

func TestLedger_Debit(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		wantErr     error
		wantBalance string
	}{
		{"partial", dec("100"), nil, "900"},
		{"entire balance", dec("1000"), nil, "0"},
		{"fractional", dec("0.01"), nil, "999.99"},
		{"more than balance", dec("1000.01"), ErrInsufficientFunds, "1000"},
		{"zero", decimal.Zero, ErrInvalidAmount, "1000"},
		{"negative", dec("-5"), ErrInvalidAmount, "1000"},
		{"fraction of a cent", dec("10.005"), ErrInvalidAmount, "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newTestLedger()
			ctx := context.Background()

			_, err := ledger.Debit(ctx, "alice", tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Debit() error = %v, want %v", err, tt.wantErr)
			}
			balance, _ := ledger.Balance(ctx, "alice")
			if !balance.Equal(dec(tt.wantBalance)) {
				t.Errorf("balance = %s, want %s", balance, tt.wantBalance)
			}
		})
	}
}

func TestLedger_Credit(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	balance, err := ledger.Credit(ctx, "alice", dec("250.75"))
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if !balance.Equal(dec("1250.75")) {
		t.Errorf("Credit() = %s, want 1250.75", balance)
	}

	if _, err := ledger.Credit(ctx, "alice", dec("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Credit(-1) error = %v, want %v", err, ErrInvalidAmount)
	}

	if _, err := ledger.Credit(ctx, "alice", dec("0.001")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Credit(0.001) error = %v, want %v", err, ErrInvalidAmount)
	}

	balance, err = ledger.Credit(ctx, "alice", decimal.Zero)
	if err != nil || !balance.Equal(dec("1250.75")) {
		t.Errorf("Credit(0) = %s, %v; want unchanged balance", balance, err)
	}
}

func TestLedger_DebitThenCreditRestores(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	for _, amount := range []string{"0.01", "1", "333.33", "1000"} {
		if _, err := ledger.Debit(ctx, "alice", dec(amount)); err != nil {
			t.Fatalf("Debit(%s) error = %v", amount, err)
		}
		balance, err := ledger.Credit(ctx, "alice", dec(amount))
		if err != nil {
			t.Fatalf("Credit(%s) error = %v", amount, err)
		}
		if !balance.Equal(dec("1000")) {
			t.Errorf("after debit/credit of %s balance = %s, want 1000", amount, balance)
		}
	}
}

func TestLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, "alice", dec("30")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 33 {
		t.Errorf("%d debits succeeded, want 33", succeeded)
	}
	balance, _ := ledger.Balance(ctx, "alice")
	if !balance.Equal(dec("10")) {
		t.Errorf("balance = %s, want 10", balance)
	}
}

func TestLedger_ConcurrentPlayersIndependent(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, player, dec("100")); err != nil {
				t.Errorf("Debit(%s) error = %v", player, err)
			}
		}("p" + strconv.Itoa(i))
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		balance, _ := ledger.Balance(ctx, "p"+strconv.Itoa(i))
		if !balance.Equal(dec("900")) {
			t.Errorf("p%d balance = %s, want 900", i, balance)
		}
	}
}

type failingStore struct {
	*MemoryStore
	failSet bool
}

func (s *failingStore) SetBalance(ctx context.Context, playerID string, balance decimal.Decimal) error {
	if s.failSet {
		return errors.New("store down")
	}
	return s.MemoryStore.SetBalance(ctx, playerID, balance)
}

func TestLedger_StoreFailureLeavesBalance(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(10)}
	ledger := NewLedger(store, dec("1000"), nil)
	ctx := context.Background()

	if _, err := ledger.Balance(ctx, "alice"); err != nil {
		t.Fatalf("Balance() error = %v", err)
	}

	store.failSet = true
	if _, err := ledger.Debit(ctx, "alice", dec("100")); err == nil {
		t.Fatal("Debit() succeeded with a failing store")
	}

	balance, _ := ledger.Balance(ctx, "alice")
	if !balance.Equal(dec("1000")) {
		t.Errorf("balance = %s after failed write, want 1000", balance)
	}
}

func TestMemoryStore_History(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	for _, v := range []float64{1.1, 2.2, 3.3, 4.4} {
		store.AppendHistory(ctx, v)
	}

	got, _ := store.LoadHistory(ctx, 10)
	if len(got) != 3 || got[0] != 2.2 || got[2] != 4.4 {
		t.Errorf("LoadHistory(10) = %v, want [2.2 3.3 4.4]", got)
	}

	got, _ = store.LoadHistory(ctx, 2)
	if len(got) != 2 || got[0] != 3.3 {
		t.Errorf("LoadHistory(2) = %v, want [3.3 4.4]", got)
	}

	if _, err := store.GetBalance(ctx, "ghost"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("GetBalance() error = %v, want %v", err, ErrPlayerNotFound)
	}
}
