package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/candle"
	"github.com/tradearena/trading-engine/internal/config"
	"github.com/tradearena/trading-engine/internal/engine"
	"github.com/tradearena/trading-engine/internal/metrics"
	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/notify"
	"github.com/tradearena/trading-engine/internal/oracle"
	"github.com/tradearena/trading-engine/internal/tournament"
	"github.com/tradearena/trading-engine/internal/wallet"
)

type server struct {
	cfg         *config.Config
	log         *slog.Logger
	engine      *engine.Engine
	tournaments *tournament.Service
	ledger      *wallet.Ledger
	oracle      oracle.PriceOracle
	candles     *candle.History
	builder     *candle.Builder
	hub         *notify.Hub
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived connection; must stay outside the request timeout.
		r.Get("/ws", s.hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			s.apiRoutes(r)
		})
	})
	return r
}

func (s *server) apiRoutes(r chi.Router) {
	r.Post("/wallets/{userID}", s.handleOpenWallet)
	r.Get("/wallets/{userID}", s.handleGetWallet)

	r.Post("/orders", s.handlePlaceOrder)
	r.Get("/orders/{orderID}", s.handleGetOrder)
	r.Delete("/orders/{orderID}", s.handleCancelOrder)

	r.Get("/users/{userID}/orders", s.handleListOrders)
	r.Get("/users/{userID}/portfolio", s.handlePortfolio)

	r.Get("/prices/{symbol}", s.handlePrice)
	r.Get("/candles/{symbol}", s.handleCandles)

	r.Route("/tournaments", func(r chi.Router) {
		r.Post("/", s.handleCreateTournament)
		r.Get("/", s.handleListTournaments)
		r.Get("/{tournamentID}", s.handleGetTournament)
		r.Post("/{tournamentID}/join", s.handleJoinTournament)
		r.Get("/{tournamentID}/participants", s.handleParticipants)
		r.Get("/{tournamentID}/leaderboard", s.handleLeaderboard)
		r.Get("/{tournamentID}/leaderboard/{userID}", s.handleUserRank)
		r.Post("/{tournamentID}/teams", s.handleCreateTeam)
		r.Get("/{tournamentID}/teams", s.handleTeamStandings)
	})
	r.Post("/teams/{teamID}/join", s.handleJoinTeam)
	r.Post("/teams/{teamID}/register", s.handleRegisterTeam)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Wallets ---

func (s *server) handleOpenWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	wlt, err := s.ledger.Open(r.Context(), userID, s.cfg.StartingBalance)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, wlt)
}

func (s *server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wlt, err := s.ledger.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, wlt)
}

// --- Orders ---

type placeOrderRequest struct {
	UserID       string          `json:"user_id"`
	TournamentID string          `json:"tournament_id"`
	Symbol       string          `json:"symbol"`
	Instrument   string          `json:"instrument_type"`
	LotSize      int64           `json:"lot_size"`
	Side         string          `json:"side"`
	Type         string          `json:"order_type"`
	Quantity     int64           `json:"quantity"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

func (s *server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, &model.ValidationError{Message: "invalid request body"})
		return
	}
	o, err := s.engine.PlaceOrder(r.Context(), engine.OrderIntent{
		UserID:       req.UserID,
		TournamentID: req.TournamentID,
		Symbol:       req.Symbol,
		Instrument:   model.InstrumentType(req.Instrument),
		LotSize:      req.LotSize,
		Side:         model.OrderSide(req.Side),
		Type:         model.OrderType(req.Type),
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
	})
	if err != nil {
		// A rejected order is still a created resource; the reason travels
		// in the body.
		if o != nil {
			s.respond(w, http.StatusUnprocessableEntity, o)
			return
		}
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, o)
}

func (s *server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.GetOrder(r.Context(), r.URL.Query().Get("user_id"), chi.URLParam(r, "orderID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, o)
}

func (s *server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.engine.CancelOrder(r.Context(), r.URL.Query().Get("user_id"), chi.URLParam(r, "orderID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := s.engine.Orders(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, orders)
}

func (s *server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	pf, err := s.engine.Portfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, pf)
}

// --- Market data ---

func (s *server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	price, err := s.oracle.Price(r.Context(), symbol)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"price":  price,
	})
}

func (s *server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp := map[string]any{
		"symbol":  symbol,
		"candles": s.candles.List(symbol, limit),
	}
	if cur := s.builder.Current(symbol); cur != nil {
		resp["current"] = cur
	}
	s.respond(w, http.StatusOK, resp)
}

// --- Tournaments ---

type createTournamentRequest struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Type               string          `json:"tournament_type"`
	TeamSize           int             `json:"team_size"`
	EntryFee           decimal.Decimal `json:"entry_fee"`
	PrizePool          decimal.Decimal `json:"prize_pool"`
	StartingBalance    decimal.Decimal `json:"starting_balance"`
	MaxParticipants    int             `json:"max_participants"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	RegistrationCutoff time.Time       `json:"registration_deadline"`
}

func (s *server) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, &model.ValidationError{Message: "invalid request body"})
		return
	}
	if req.StartingBalance.IsZero() {
		req.StartingBalance = s.cfg.StartingBalance
	}
	t, err := s.tournaments.Create(r.Context(), tournament.CreateParams{
		Name:               req.Name,
		Description:        req.Description,
		Type:               model.TournamentType(req.Type),
		TeamSize:           req.TeamSize,
		EntryFee:           req.EntryFee,
		PrizePool:          req.PrizePool,
		StartingBalance:    req.StartingBalance,
		MaxParticipants:    req.MaxParticipants,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		RegistrationCutoff: req.RegistrationCutoff,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, t)
}

func (s *server) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	list, err := s.tournaments.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, list)
}

func (s *server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.tournaments.Get(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

type userRequest struct {
	UserID string `json:"user_id"`
}

func (s *server) handleJoinTournament(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, &model.ValidationError{Message: "invalid request body"})
		return
	}
	p, err := s.tournaments.Join(r.Context(), chi.URLParam(r, "tournamentID"), req.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, p)
}

func (s *server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := s.tournaments.Participants(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, list)
}

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.tournaments.Leaderboard(r.Context(), chi.URLParam(r, "tournamentID"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, rows)
}

func (s *server) handleUserRank(w http.ResponseWriter, r *http.Request) {
	row, err := s.tournaments.UserRank(r.Context(),
		chi.URLParam(r, "tournamentID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, row)
}

// --- Teams ---

type createTeamRequest struct {
	Name      string `json:"name"`
	CaptainID string `json:"captain_id"`
}

func (s *server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, &model.ValidationError{Message: "invalid request body"})
		return
	}
	if req.Name == "" {
		s.fail(w, &model.ValidationError{Message: "name is required"})
		return
	}
	team, err := s.tournaments.CreateTeam(r.Context(), chi.URLParam(r, "tournamentID"), req.Name, req.CaptainID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, team)
}

func (s *server) handleJoinTeam(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, &model.ValidationError{Message: "invalid request body"})
		return
	}
	team, err := s.tournaments.JoinTeam(r.Context(), chi.URLParam(r, "teamID"), req.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, team)
}

type registerTeamRequest struct {
	CaptainID string `json:"captain_id"`
}

func (s *server) handleRegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req registerTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, &model.ValidationError{Message: "invalid request body"})
		return
	}
	team, err := s.tournaments.RegisterTeam(r.Context(), chi.URLParam(r, "teamID"), req.CaptainID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, team)
}

func (s *server) handleTeamStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := s.tournaments.TeamStandings(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, standings)
}

// --- Helpers ---

func (s *server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *server) fail(w http.ResponseWriter, err error) {
	var vErr *model.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrWalletNotFound),
		errors.Is(err, model.ErrPositionNotFound),
		errors.Is(err, model.ErrTournamentNotFound),
		errors.Is(err, model.ErrTeamNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrPositionLimitExceeded),
		errors.Is(err, model.ErrPriceUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrDuplicateParticipant),
		errors.Is(err, model.ErrTournamentNotJoinable),
		errors.Is(err, model.ErrTeamFull),
		errors.Is(err, model.ErrTeamNotFull),
		errors.Is(err, model.ErrWalletExists),
		errors.Is(err, model.ErrOrderNotCancellable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}
