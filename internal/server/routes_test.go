package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"crashgame/internal/database"
	"crashgame/internal/game"
	"crashgame/internal/metrics"
)

type testServer struct {
	*FiberServer
	engine *game.Engine
	ledger *game.Ledger
	hub    *game.Hub
}

func newTestServer(t *testing.T, archive Archive) *testServer {
	t.Helper()

	cfg := game.DefaultConfig()
	cfg.BettingWindow = time.Minute
	cfg.TickInterval = time.Millisecond
	return newTestServerWith(t, cfg, archive)
}

func newTestServerWith(t *testing.T, cfg game.Config, archive Archive, opts ...game.Option) *testServer {
	t.Helper()

	store := game.NewMemoryStore(cfg.HistoryCapacity)
	ledger := game.NewLedger(store, cfg.StartingBalance, nil)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := game.NewHub(cfg.ClientBuffer, nil, m)

	opts = append([]game.Option{game.WithHistoryStore(store), game.WithMetrics(m)}, opts...)
	engine, err := game.NewEngine(cfg, ledger, hub, opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := engine.Snapshot(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine did not open a round")
		}
		time.Sleep(time.Millisecond)
	}

	srv := New(Deps{
		Engine:   engine,
		Ledger:   ledger,
		Hub:      hub,
		Archive:  archive,
		Gatherer: reg,
	})
	return &testServer{FiberServer: srv, engine: engine, ledger: ledger, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}

	var result map[string]interface{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("could not unmarshal response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, result
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK {
		t.Fatalf("expected status OK; got %v", status)
	}

	cache, _ := body["cache"].(map[string]interface{})
	if cache["status"] != "disabled" {
		t.Errorf("cache = %v, want disabled", body["cache"])
	}
	gameStatus, _ := body["game"].(map[string]interface{})
	if gameStatus["status"] != "running" || gameStatus["phase"] != "BETTING" {
		t.Errorf("game = %v", body["game"])
	}
}

func TestGetGameStateHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodGet, "/api/v1/game/state", "")
	if status != http.StatusOK {
		t.Fatalf("expected status OK; got %v", status)
	}
	if body["phase"] != "BETTING" {
		t.Errorf("phase = %v, want BETTING", body["phase"])
	}
	if _, ok := body["crash_point"]; ok {
		t.Error("crash point revealed before the crash")
	}
	if c, _ := body["commitment"].(string); len(c) != 64 {
		t.Errorf("commitment = %v", body["commitment"])
	}
}

func TestPlaceBetHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
	}{
		{"accepted", `{"user_id":"alice","amount":100}`, http.StatusOK, ""},
		{"duplicate", `{"user_id":"alice","amount":100}`, http.StatusBadRequest, "duplicate_bet"},
		{"missing user", `{"amount":100}`, http.StatusBadRequest, ""},
		{"invalid body", `{"user_id":`, http.StatusBadRequest, ""},
		{"non-numeric amount", `{"user_id":"bob","amount":"lots"}`, http.StatusBadRequest, "invalid_amount"},
		{"fraction of a cent", `{"user_id":"bob","amount":"10.005"}`, http.StatusBadRequest, "invalid_amount"},
		{"insufficient funds", `{"user_id":"carol","amount":5000}`, http.StatusBadRequest, "insufficient_funds"},
		{"bad auto cashout", `{"user_id":"dave","amount":10,"auto_cashout":1}`, http.StatusBadRequest, "invalid_auto_cashout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.do(t, http.MethodPost, "/api/v1/game/bet", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
			if tt.wantReason != "" && body["reason"] != tt.wantReason {
				t.Errorf("reason = %v, want %s", body["reason"], tt.wantReason)
			}
			if tt.wantStatus == http.StatusOK && body["balance"] != 900.0 {
				t.Errorf("balance = %v, want 900", body["balance"])
			}
		})
	}
}

func TestCashoutHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodPost, "/api/v1/game/cashout", `{"user_id":"alice"}`)
	if status != http.StatusBadRequest || body["reason"] != "no_active_bet" {
		t.Errorf("cashout without bet = %d %v", status, body)
	}

	srv.do(t, http.MethodPost, "/api/v1/game/bet", `{"user_id":"alice","amount":10}`)
	status, body = srv.do(t, http.MethodPost, "/api/v1/game/cashout", `{"user_id":"alice"}`)
	if status != http.StatusBadRequest || body["reason"] != "round_not_flying" {
		t.Errorf("cashout while betting = %d %v", status, body)
	}

	status, _ = srv.do(t, http.MethodPost, "/api/v1/game/cashout", `{}`)
	if status != http.StatusBadRequest {
		t.Errorf("cashout without user = %d, want 400", status)
	}
}

func TestBalanceAndDeposit(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodGet, "/api/v1/user/alice/balance", "")
	if status != http.StatusOK || body["balance"] != 1000.0 {
		t.Fatalf("balance = %d %v, want 1000", status, body)
	}

	status, body = srv.do(t, http.MethodPost, "/api/v1/user/alice/deposit", `{"amount":"250.50"}`)
	if status != http.StatusOK || body["balance"] != 1250.5 {
		t.Fatalf("deposit = %d %v, want 1250.5", status, body)
	}

	_, body = srv.do(t, http.MethodGet, "/api/v1/user/alice/balance", "")
	if body["balance"] != 1250.5 {
		t.Errorf("balance after deposit = %v, want 1250.5", body["balance"])
	}

	for _, bad := range []string{`{"amount":-5}`, `{"amount":0}`, `{"amount":"x"}`, `{"amount":"10.005"}`, `{}`} {
		status, body = srv.do(t, http.MethodPost, "/api/v1/user/alice/deposit", bad)
		if status != http.StatusBadRequest || body["reason"] != "invalid_amount" {
			t.Errorf("deposit %s = %d %v, want 400 invalid_amount", bad, status, body)
		}
	}
}

func TestHistoryHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodGet, "/api/v1/game/history", "")
	if status != http.StatusOK {
		t.Fatalf("expected status OK; got %v", status)
	}
	if h, ok := body["history"].([]interface{}); !ok || len(h) != 0 {
		t.Errorf("history = %v, want empty list", body["history"])
	}
}

func TestVerifyHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	seed := game.RoundSeed{ServerSeed: "server", ClientSeed: "client", Nonce: 5}
	want := srv.engine.Generator().CrashPoint(seed)

	status, body := srv.do(t, http.MethodGet, "/api/v1/game/verify?server_seed=server&client_seed=client&nonce=5", "")
	if status != http.StatusOK {
		t.Fatalf("verify = %d %v", status, body)
	}
	if body["crash_point"] != want || body["commitment"] != seed.Commitment() {
		t.Errorf("verify = %v, want crash point %v", body, want)
	}

	_, body = srv.do(t, http.MethodGet, "/api/v1/game/verify?server_seed=server&client_seed=client&nonce=5&crash_point=1000001", "")
	if body["valid"] != false {
		t.Errorf("tampered crash point valid = %v", body["valid"])
	}

	tests := []struct {
		name  string
		query string
	}{
		{"missing seeds", "nonce=1"},
		{"bad nonce", "server_seed=a&client_seed=b&nonce=x"},
		{"bad crash point", "server_seed=a&client_seed=b&nonce=1&crash_point=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _ := srv.do(t, http.MethodGet, "/api/v1/game/verify?"+tt.query, ""); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

type archiveStub struct {
	rounds []database.RoundRecord
	err    error
}

func (a archiveStub) Health() map[string]string { return map[string]string{"status": "up"} }

func (a archiveStub) RecentRounds(_ context.Context, limit int) ([]database.RoundRecord, error) {
	if len(a.rounds) > limit {
		return a.rounds[:limit], a.err
	}
	return a.rounds, a.err
}

func TestRoundsHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, nil)
		if status, _ := srv.do(t, http.MethodGet, "/api/v1/game/rounds", ""); status != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", status)
		}
	})

	t.Run("archived", func(t *testing.T) {
		srv := newTestServer(t, archiveStub{rounds: []database.RoundRecord{{RoundNumber: 3, CrashPoint: 2.5}}})
		status, body := srv.do(t, http.MethodGet, "/api/v1/game/rounds?limit=5", "")
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		rounds, _ := body["rounds"].([]interface{})
		if len(rounds) != 1 {
			t.Fatalf("rounds = %v", body["rounds"])
		}
		if r := rounds[0].(map[string]interface{}); r["crash_point"] != 2.5 {
			t.Errorf("round = %v", r)
		}

		_, health := srv.do(t, http.MethodGet, "/health", "")
		if db, _ := health["database"].(map[string]interface{}); db["status"] != "up" {
			t.Errorf("database health = %v", health["database"])
		}
	})

	t.Run("failure", func(t *testing.T) {
		srv := newTestServer(t, archiveStub{err: errors.New("db down")})
		if status, _ := srv.do(t, http.MethodGet, "/api/v1/game/rounds", ""); status != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", status)
		}
	})
}

func TestMetricsHandler(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodPost, "/api/v1/game/bet", `{"user_id":"alice","amount":10}`)

	resp, err := srv.App.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "crash_bets_total 1") {
		t.Errorf("metrics missing bet counter:\n%s", raw)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	srv := newTestServer(t, nil)
	if status, _ := srv.do(t, http.MethodGet, "/ws", ""); status != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", status)
	}
}
