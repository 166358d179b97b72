package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/candle"
	"github.com/tradearena/trading-engine/internal/config"
	"github.com/tradearena/trading-engine/internal/engine"
	"github.com/tradearena/trading-engine/internal/notify"
	"github.com/tradearena/trading-engine/internal/oracle"
	"github.com/tradearena/trading-engine/internal/risk"
	"github.com/tradearena/trading-engine/internal/store"
	"github.com/tradearena/trading-engine/internal/tournament"
	"github.com/tradearena/trading-engine/internal/wallet"
)

// newTestServer wires a full server on the in-memory store with a frozen
// simulator, so every endpoint is exercised end to end over HTTP.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	hub := notify.NewHub(log)
	sim := oracle.NewSimulator(map[string]decimal.Decimal{
		"BANKNIFTY": decimal.NewFromInt(500),
	}, time.Second, 0.005, 1, log)
	tournaments := tournament.NewService(st, hub, log)
	eng := engine.NewEngine(st, sim, risk.Policy{}, hub, tournaments, time.Second, log)

	cfg := &config.Config{StartingBalance: decimal.NewFromInt(100000)}
	srv := &server{
		cfg:         cfg,
		log:         log,
		engine:      eng,
		tournaments: tournaments,
		ledger:      wallet.NewLedger(st, log),
		oracle:      sim,
		candles:     candle.NewHistory(10),
		builder:     candle.NewBuilder(time.Minute),
		hub:         hub,
	}
	return srv.routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandlers_Health(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestHandlers_WalletLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/wallets/u1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open wallet status %d, want 201", rec.Code)
	}
	var w struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decodeBody(t, rec, &w)
	if !w.Balance.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("balance %s, want 100000", w.Balance)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/wallets/u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get wallet status %d, want 200", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/wallets/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing wallet status %d, want 404", rec.Code)
	}
}

func TestHandlers_OrderFlow(t *testing.T) {
	h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/v1/wallets/u1", nil)

	rec := do(t, h, http.MethodPost, "/api/v1/orders", map[string]any{
		"user_id":         "u1",
		"symbol":          "BANKNIFTY",
		"instrument_type": "INDEX",
		"side":            "BUY",
		"order_type":      "MARKET",
		"quantity":        10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place order status %d, want 201: %s", rec.Code, rec.Body)
	}
	var o struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &o)
	if o.Status != "EXECUTED" {
		t.Errorf("order status %s, want EXECUTED", o.Status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/portfolio", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio status %d, want 200", rec.Code)
	}
	var pf struct {
		AvailableBalance decimal.Decimal `json:"available_balance"`
		OpenPositions    int             `json:"open_positions_count"`
	}
	decodeBody(t, rec, &pf)
	if !pf.AvailableBalance.Equal(decimal.NewFromInt(95000)) {
		t.Errorf("available balance %s, want 95000", pf.AvailableBalance)
	}
	if pf.OpenPositions != 1 {
		t.Errorf("open positions %d, want 1", pf.OpenPositions)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/orders/"+o.ID+"?user_id=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order status %d, want 200", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/orders/"+o.ID+"?user_id=other", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign order status %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list orders status %d, want 200", rec.Code)
	}
	var orders []json.RawMessage
	decodeBody(t, rec, &orders)
	if len(orders) != 1 {
		t.Errorf("order count %d, want 1", len(orders))
	}
}

func TestHandlers_OrderRejections(t *testing.T) {
	h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/v1/wallets/poor", nil)

	// Unaffordable order comes back 422 with the persisted REJECTED record.
	rec := do(t, h, http.MethodPost, "/api/v1/orders", map[string]any{
		"user_id":         "poor",
		"symbol":          "BANKNIFTY",
		"instrument_type": "INDEX",
		"side":            "BUY",
		"order_type":      "MARKET",
		"quantity":        1000,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", rec.Code, rec.Body)
	}
	var o struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	decodeBody(t, rec, &o)
	if o.Status != "REJECTED" || o.Reason == "" {
		t.Errorf("got status %s reason %q, want REJECTED with a reason", o.Status, o.Reason)
	}

	// Missing quantity fails validation before anything is persisted.
	rec = do(t, h, http.MethodPost, "/api/v1/orders", map[string]any{
		"user_id":         "poor",
		"symbol":          "BANKNIFTY",
		"instrument_type": "INDEX",
		"side":            "BUY",
		"order_type":      "MARKET",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestHandlers_CancelOrder(t *testing.T) {
	h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/v1/wallets/u1", nil)

	rec := do(t, h, http.MethodPost, "/api/v1/orders", map[string]any{
		"user_id":         "u1",
		"symbol":          "BANKNIFTY",
		"instrument_type": "INDEX",
		"side":            "BUY",
		"order_type":      "LIMIT",
		"quantity":        5,
		"limit_price":     "400",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place limit order status %d, want 201: %s", rec.Code, rec.Body)
	}
	var o struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &o)
	if o.Status != "OPEN" {
		t.Fatalf("limit order status %s, want OPEN", o.Status)
	}

	var res struct {
		Cancelled bool `json:"cancelled"`
	}
	rec = do(t, h, http.MethodDelete, "/api/v1/orders/"+o.ID+"?user_id=u1", nil)
	decodeBody(t, rec, &res)
	if rec.Code != http.StatusOK || !res.Cancelled {
		t.Fatalf("first cancel: status %d cancelled %v, want 200 true", rec.Code, res.Cancelled)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/orders/"+o.ID+"?user_id=u1", nil)
	decodeBody(t, rec, &res)
	if rec.Code != http.StatusOK || res.Cancelled {
		t.Fatalf("second cancel: status %d cancelled %v, want 200 false", rec.Code, res.Cancelled)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/orders/missing?user_id=u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing order cancel status %d, want 404", rec.Code)
	}
}

func TestHandlers_MarketData(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/prices/BANKNIFTY", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("price status %d, want 200", rec.Code)
	}
	var p struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	decodeBody(t, rec, &p)
	if !p.Price.Equal(decimal.NewFromInt(500)) {
		t.Errorf("price %s, want 500", p.Price)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/prices/UNKNOWN", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown symbol status %d, want 422", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/candles/BANKNIFTY", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("candles status %d, want 200", rec.Code)
	}
}

func TestHandlers_TournamentFlow(t *testing.T) {
	h := newTestServer(t)
	now := time.Now()

	rec := do(t, h, http.MethodPost, "/api/v1/tournaments/", map[string]any{
		"name":                  "Weekly Clash",
		"tournament_type":       "SOLO",
		"max_participants":      100,
		"registration_deadline": now.Add(time.Hour),
		"start_date":            now.Add(2 * time.Hour),
		"end_date":              now.Add(26 * time.Hour),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tournament status %d, want 201: %s", rec.Code, rec.Body)
	}
	var tn struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &tn)
	if tn.Status != "REGISTRATION_OPEN" {
		t.Errorf("tournament status %s, want REGISTRATION_OPEN", tn.Status)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/tournaments/"+tn.ID+"/join", map[string]any{"user_id": "u1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("join status %d, want 201: %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/tournaments/"+tn.ID+"/join", map[string]any{"user_id": "u1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate join status %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/tournaments/"+tn.ID+"/participants", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("participants status %d, want 200", rec.Code)
	}
	var parts []json.RawMessage
	decodeBody(t, rec, &parts)
	if len(parts) != 1 {
		t.Errorf("participant count %d, want 1", len(parts))
	}

	rec = do(t, h, http.MethodGet, "/api/v1/tournaments/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing tournament status %d, want 404", rec.Code)
	}

	// End date before start date never reaches the store.
	rec = do(t, h, http.MethodPost, "/api/v1/tournaments/", map[string]any{
		"name":                  "Backwards",
		"tournament_type":       "SOLO",
		"max_participants":      10,
		"registration_deadline": now.Add(time.Hour),
		"start_date":            now.Add(26 * time.Hour),
		"end_date":              now.Add(2 * time.Hour),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid tournament status %d, want 400", rec.Code)
	}
}

func TestHandlers_TeamFlow(t *testing.T) {
	h := newTestServer(t)
	now := time.Now()

	rec := do(t, h, http.MethodPost, "/api/v1/tournaments/", map[string]any{
		"name":                  "Team Battle",
		"tournament_type":       "TEAM",
		"team_size":             2,
		"max_participants":      20,
		"registration_deadline": now.Add(time.Hour),
		"start_date":            now.Add(2 * time.Hour),
		"end_date":              now.Add(26 * time.Hour),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tournament status %d, want 201: %s", rec.Code, rec.Body)
	}
	var tn struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &tn)

	rec = do(t, h, http.MethodPost, "/api/v1/tournaments/"+tn.ID+"/teams", map[string]any{
		"name":       "Bulls",
		"captain_id": "cap",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create team status %d, want 201: %s", rec.Code, rec.Body)
	}
	var team struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &team)

	// Registering before the roster is complete conflicts.
	rec = do(t, h, http.MethodPost, "/api/v1/teams/"+team.ID+"/register", map[string]any{"captain_id": "cap"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("early register status %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/teams/"+team.ID+"/join", map[string]any{"user_id": "mate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("join team status %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/teams/"+team.ID+"/register", map[string]any{"captain_id": "cap"})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/tournaments/"+tn.ID+"/teams", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("standings status %d, want 200", rec.Code)
	}
	var standings []json.RawMessage
	decodeBody(t, rec, &standings)
	if len(standings) != 1 {
		t.Errorf("standings count %d, want 1", len(standings))
	}
}
