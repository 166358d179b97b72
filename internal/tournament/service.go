// Package tournament manages competitions: registration, team formation,
// standings and leaderboard ranking.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/metrics"
	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/notify"
	"github.com/tradearena/trading-engine/internal/store"
)

// Service owns tournament state. Ranking recomputation and registration are
// serialized per tournament.
type Service struct {
	store store.Store
	sink  notify.Sink
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService returns a tournament service backed by st.
func NewService(st store.Store, sink notify.Sink, log *slog.Logger) *Service {
	return &Service{
		store: st,
		sink:  sink,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lock(tournamentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[tournamentID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[tournamentID] = m
	}
	return m
}

// CreateParams describes a new tournament.
type CreateParams struct {
	Name               string
	Description        string
	Type               model.TournamentType
	TeamSize           int
	EntryFee           decimal.Decimal
	PrizePool          decimal.Decimal
	StartingBalance    decimal.Decimal
	MaxParticipants    int
	StartDate          time.Time
	EndDate            time.Time
	RegistrationCutoff time.Time
}

func (p *CreateParams) validate() error {
	switch {
	case p.Name == "":
		return &model.ValidationError{Message: "name is required"}
	case p.Type != model.TournamentSolo && p.Type != model.TournamentTeam:
		return &model.ValidationError{Message: "tournament_type must be SOLO or TEAM"}
	case p.Type == model.TournamentTeam && p.TeamSize < 2:
		return &model.ValidationError{Message: "team tournaments require team_size of at least 2"}
	case !p.StartingBalance.IsPositive():
		return &model.ValidationError{Message: "starting_balance must be positive"}
	case !p.EndDate.After(p.StartDate):
		return &model.ValidationError{Message: "end_date must be after start_date"}
	case p.RegistrationCutoff.After(p.StartDate):
		return &model.ValidationError{Message: "registration_deadline must not be after start_date"}
	case p.EntryFee.IsNegative() || p.PrizePool.IsNegative():
		return &model.ValidationError{Message: "entry_fee and prize_pool must not be negative"}
	}
	return nil
}

// Create registers a new tournament.
func (s *Service) Create(ctx context.Context, p CreateParams) (*model.Tournament, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	t := &model.Tournament{
		ID:                 uuid.NewString(),
		Name:               p.Name,
		Description:        p.Description,
		Type:               p.Type,
		TeamSize:           p.TeamSize,
		EntryFee:           p.EntryFee,
		PrizePool:          p.PrizePool,
		StartingBalance:    p.StartingBalance,
		MaxParticipants:    p.MaxParticipants,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		RegistrationCutoff: p.RegistrationCutoff,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t.Status = model.StatusOf(t, now)
	if err := s.store.CreateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("create tournament: %w", err)
	}
	s.log.Info("tournament created", "tournament_id", t.ID, "name", t.Name, "type", t.Type)
	return t, nil
}

// Get returns the tournament with its status derived from the clock.
func (s *Service) Get(ctx context.Context, id string) (*model.Tournament, error) {
	t, err := s.store.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Status = model.StatusOf(t, s.now())
	return t, nil
}

// List returns all tournaments with derived statuses.
func (s *Service) List(ctx context.Context) ([]model.Tournament, error) {
	tournaments, err := s.store.ListTournaments(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range tournaments {
		tournaments[i].Status = model.StatusOf(&tournaments[i], now)
	}
	return tournaments, nil
}

// Join enrolls a user in a solo tournament. Team tournaments are entered
// through RegisterTeam.
func (s *Service) Join(ctx context.Context, tournamentID, userID string) (*model.TournamentParticipant, error) {
	lock := s.lock(tournamentID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Type != model.TournamentSolo {
		return nil, &model.ValidationError{Message: "team tournaments are joined by registering a team"}
	}
	if !t.RegistrationOpen(s.now()) {
		return nil, model.ErrTournamentNotJoinable
	}

	p := s.newParticipant(t, userID, "")
	if err := s.store.InsertParticipant(ctx, p); err != nil {
		return nil, err
	}
	t.CurrentParticipants++
	t.UpdatedAt = s.now()
	if err := s.store.UpdateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("update participant count: %w", err)
	}
	s.log.Info("participant joined", "tournament_id", tournamentID, "user_id", userID)
	return p, nil
}

func (s *Service) newParticipant(t *model.Tournament, userID, teamID string) *model.TournamentParticipant {
	return &model.TournamentParticipant{
		ID:              uuid.NewString(),
		TournamentID:    t.ID,
		UserID:          userID,
		TeamID:          teamID,
		StartingBalance: t.StartingBalance,
		CurrentBalance:  t.StartingBalance,
		TotalPnL:        decimal.Zero,
		JoinedAt:        s.now(),
	}
}

// CreateTeam opens a team in a team tournament with the caller as captain.
func (s *Service) CreateTeam(ctx context.Context, tournamentID, name, captainID string) (*model.Team, error) {
	lock := s.lock(tournamentID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Type != model.TournamentTeam {
		return nil, &model.ValidationError{Message: "solo tournaments have no teams"}
	}
	if !t.RegistrationOpen(s.now()) {
		return nil, model.ErrTournamentNotJoinable
	}
	if err := s.ensureNotInTeam(ctx, tournamentID, captainID); err != nil {
		return nil, err
	}

	team := &model.Team{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		Name:         name,
		CaptainID:    captainID,
		TotalMembers: 1,
		CreatedAt:    s.now(),
	}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("insert team: %w", err)
	}
	member := &model.TeamMember{TeamID: team.ID, UserID: captainID, Role: model.RoleCaptain, JoinedAt: s.now()}
	if err := s.store.InsertTeamMember(ctx, member); err != nil {
		return nil, fmt.Errorf("insert captain: %w", err)
	}
	s.log.Info("team created", "tournament_id", tournamentID, "team_id", team.ID, "captain_id", captainID)
	return team, nil
}

// JoinTeam adds a user to an unregistered team with a free seat.
func (s *Service) JoinTeam(ctx context.Context, teamID, userID string) (*model.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	lock := s.lock(team.TournamentID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock; membership may have changed.
	team, err = s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Registered {
		return nil, model.ErrTournamentNotJoinable
	}
	t, err := s.store.GetTournament(ctx, team.TournamentID)
	if err != nil {
		return nil, err
	}
	if !t.RegistrationOpen(s.now()) {
		return nil, model.ErrTournamentNotJoinable
	}
	if team.TotalMembers >= t.TeamSize {
		return nil, model.ErrTeamFull
	}
	if err := s.ensureNotInTeam(ctx, team.TournamentID, userID); err != nil {
		return nil, err
	}

	member := &model.TeamMember{TeamID: teamID, UserID: userID, Role: model.RoleMember, JoinedAt: s.now()}
	if err := s.store.InsertTeamMember(ctx, member); err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	team.TotalMembers++
	if err := s.store.UpdateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("update team size: %w", err)
	}
	s.log.Info("team member joined", "team_id", teamID, "user_id", userID)
	return team, nil
}

// RegisterTeam enters a full team into the tournament. Only the captain may
// register, and each member gets an individual standing row carrying the
// team ID.
func (s *Service) RegisterTeam(ctx context.Context, teamID, captainID string) (*model.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	lock := s.lock(team.TournamentID)
	lock.Lock()
	defer lock.Unlock()

	team, err = s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != captainID {
		return nil, &model.ValidationError{Message: "only the captain can register the team"}
	}
	if team.Registered {
		return nil, model.ErrDuplicateParticipant
	}
	t, err := s.store.GetTournament(ctx, team.TournamentID)
	if err != nil {
		return nil, err
	}
	if !t.RegistrationOpen(s.now()) {
		return nil, model.ErrTournamentNotJoinable
	}
	if team.TotalMembers != t.TeamSize {
		return nil, fmt.Errorf("%w: team has %d of %d members", model.ErrTeamNotFull, team.TotalMembers, t.TeamSize)
	}
	if t.MaxParticipants > 0 && t.CurrentParticipants+t.TeamSize > t.MaxParticipants {
		return nil, model.ErrTournamentNotJoinable
	}

	members, err := s.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if err := s.store.InsertParticipant(ctx, s.newParticipant(t, m.UserID, teamID)); err != nil {
			return nil, err
		}
	}
	team.Registered = true
	if err := s.store.UpdateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("mark team registered: %w", err)
	}
	t.CurrentParticipants += len(members)
	t.UpdatedAt = s.now()
	if err := s.store.UpdateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("update participant count: %w", err)
	}
	s.log.Info("team registered", "tournament_id", t.ID, "team_id", teamID, "members", len(members))
	return team, nil
}

func (s *Service) ensureNotInTeam(ctx context.Context, tournamentID, userID string) error {
	_, err := s.store.GetTeamByMember(ctx, tournamentID, userID)
	if err == nil {
		return model.ErrDuplicateParticipant
	}
	if errors.Is(err, model.ErrTeamNotFound) {
		return nil
	}
	return err
}

// RecomputeRankings rebuilds the tournament leaderboard. The score is a
// participant's accumulated realized P&L plus the unrealized P&L of their
// open positions at this moment; ties break by earlier join, then user ID,
// so ranks within one tournament are always a dense permutation 1..N.
func (s *Service) RecomputeRankings(ctx context.Context, tournamentID string) error {
	lock := s.lock(tournamentID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	participants, err := s.store.ListParticipants(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	if len(participants) == 0 {
		return nil
	}
	unrealized, err := s.unrealizedByUser(ctx, tournamentID)
	if err != nil {
		return err
	}

	var rows []model.TournamentRanking
	if t.Type == model.TournamentTeam {
		rows, err = s.teamRows(ctx, tournamentID, participants, unrealized)
		if err != nil {
			return err
		}
	} else {
		rows = s.soloRows(ctx, participants, unrealized)
	}
	if err := s.store.ReplaceRankings(ctx, tournamentID, rows); err != nil {
		return fmt.Errorf("replace rankings: %w", err)
	}
	metrics.RankRecomputes.Inc()
	s.sink.Publish(notify.Event{
		Type:         notify.EventLeaderboard,
		TournamentID: tournamentID,
		Timestamp:    s.now(),
	})
	return nil
}

func (s *Service) soloRows(ctx context.Context, participants []model.TournamentParticipant, unrealized map[string]decimal.Decimal) []model.TournamentRanking {
	type scored struct {
		p     *model.TournamentParticipant
		score decimal.Decimal
	}
	entries := make([]scored, len(participants))
	for i := range participants {
		p := &participants[i]
		entries[i] = scored{p: p, score: p.TotalPnL.Add(unrealized[p.UserID])}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].score.Equal(entries[j].score) {
			return entries[i].score.GreaterThan(entries[j].score)
		}
		if !entries[i].p.JoinedAt.Equal(entries[j].p.JoinedAt) {
			return entries[i].p.JoinedAt.Before(entries[j].p.JoinedAt)
		}
		return entries[i].p.UserID < entries[j].p.UserID
	})

	now := s.now()
	rows := make([]model.TournamentRanking, len(entries))
	for i, e := range entries {
		rank := i + 1
		e.p.Rank = rank
		if err := s.store.UpdateParticipant(ctx, e.p); err != nil {
			s.log.Error("persist participant rank", "user_id", e.p.UserID, "error", err)
		}
		rows[i] = model.TournamentRanking{
			TournamentID:   e.p.TournamentID,
			UserID:         e.p.UserID,
			TeamID:         e.p.TeamID,
			Rank:           rank,
			TotalPnL:       e.score,
			ROI:            rankROI(e.score, e.p.StartingBalance),
			WinRate:        e.p.WinRate(),
			TotalTrades:    e.p.TotalTrades,
			CurrentBalance: e.p.StartingBalance.Add(e.score),
			UpdatedAt:      now,
		}
	}
	return rows
}

func (s *Service) teamRows(ctx context.Context, tournamentID string, participants []model.TournamentParticipant, unrealized map[string]decimal.Decimal) ([]model.TournamentRanking, error) {
	standings, err := s.aggregateTeams(ctx, tournamentID, participants, unrealized)
	if err != nil {
		return nil, err
	}
	sort.Slice(standings, func(i, j int) bool {
		if !standings[i].TotalPnL.Equal(standings[j].TotalPnL) {
			return standings[i].TotalPnL.GreaterThan(standings[j].TotalPnL)
		}
		return standings[i].TeamID < standings[j].TeamID
	})
	now := s.now()
	rows := make([]model.TournamentRanking, len(standings))
	for i, st := range standings {
		rows[i] = model.TournamentRanking{
			TournamentID:   tournamentID,
			TeamID:         st.TeamID,
			Name:           st.Name,
			Rank:           i + 1,
			TotalPnL:       st.TotalPnL,
			ROI:            st.ROI,
			WinRate:        st.WinRate,
			TotalTrades:    st.TotalTrades,
			CurrentBalance: st.CurrentBalance,
			UpdatedAt:      now,
		}
	}
	return rows, nil
}

// aggregateTeams folds member standing rows into per-team aggregates.
func (s *Service) aggregateTeams(ctx context.Context, tournamentID string, participants []model.TournamentParticipant, unrealized map[string]decimal.Decimal) ([]model.TeamStanding, error) {
	teams, err := s.store.ListTeams(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	byTeam := make(map[string]*model.TeamStanding)
	order := make([]string, 0)
	for i := range participants {
		p := &participants[i]
		if p.TeamID == "" {
			continue
		}
		st, ok := byTeam[p.TeamID]
		if !ok {
			st = &model.TeamStanding{
				TeamID:       p.TeamID,
				TournamentID: tournamentID,
				Name:         names[p.TeamID],
			}
			byTeam[p.TeamID] = st
			order = append(order, p.TeamID)
		}
		score := p.TotalPnL.Add(unrealized[p.UserID])
		st.Members++
		st.StartingBalance = st.StartingBalance.Add(p.StartingBalance)
		st.CurrentBalance = st.CurrentBalance.Add(p.StartingBalance).Add(score)
		st.TotalPnL = st.TotalPnL.Add(score)
		st.TotalTrades += p.TotalTrades
		st.WinningTrades += p.WinningTrades
	}

	out := make([]model.TeamStanding, 0, len(byTeam))
	for _, id := range order {
		st := byTeam[id]
		st.Recalculate()
		out = append(out, *st)
	}
	return out, nil
}

// TeamStandings returns current per-team aggregates, best first.
func (s *Service) TeamStandings(ctx context.Context, tournamentID string) ([]model.TeamStanding, error) {
	participants, err := s.store.ListParticipants(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	unrealized, err := s.unrealizedByUser(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	standings, err := s.aggregateTeams(ctx, tournamentID, participants, unrealized)
	if err != nil {
		return nil, err
	}
	sort.Slice(standings, func(i, j int) bool {
		if !standings[i].TotalPnL.Equal(standings[j].TotalPnL) {
			return standings[i].TotalPnL.GreaterThan(standings[j].TotalPnL)
		}
		return standings[i].TeamID < standings[j].TeamID
	})
	return standings, nil
}

func (s *Service) unrealizedByUser(ctx context.Context, tournamentID string) (map[string]decimal.Decimal, error) {
	positions, err := s.store.ListPositionsByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list tournament positions: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(positions))
	for i := range positions {
		p := &positions[i]
		out[p.UserID] = out[p.UserID].Add(p.UnrealizedPnL)
	}
	return out, nil
}

// Leaderboard returns the materialized top rows.
func (s *Service) Leaderboard(ctx context.Context, tournamentID string, limit int) ([]model.TournamentRanking, error) {
	return s.store.ListRankings(ctx, tournamentID, limit)
}

// UserRank returns one user's leaderboard row.
func (s *Service) UserRank(ctx context.Context, tournamentID, userID string) (*model.TournamentRanking, error) {
	return s.store.GetRanking(ctx, tournamentID, userID)
}

// Participants lists the tournament's standing rows.
func (s *Service) Participants(ctx context.Context, tournamentID string) ([]model.TournamentParticipant, error) {
	return s.store.ListParticipants(ctx, tournamentID)
}

// SyncStatuses walks all tournaments and persists status changes the clock
// has caused. Every COMPLETED tournament ends up with a final ranking pass
// so the podium freezes on end-of-tournament state, whether it crossed into
// COMPLETED on this run or finished without a board. Run from cron.
func (s *Service) SyncStatuses(ctx context.Context) error {
	tournaments, err := s.store.ListTournaments(ctx)
	if err != nil {
		return fmt.Errorf("list tournaments: %w", err)
	}
	now := s.now()
	for i := range tournaments {
		t := &tournaments[i]
		derived := model.StatusOf(t, now)
		changed := derived != t.Status
		if changed {
			prev := t.Status
			t.Status = derived
			t.UpdatedAt = now
			if err := s.store.UpdateTournament(ctx, t); err != nil {
				s.log.Error("persist status change", "tournament_id", t.ID, "error", err)
				continue
			}
			s.log.Info("tournament status changed", "tournament_id", t.ID, "from", prev, "to", derived)
		}
		if derived != model.TournamentCompleted {
			continue
		}
		if !changed {
			// Completed before this run (created past its end date, or a
			// crash between the status write and the recompute). Backfill
			// the final board only if it is missing.
			rows, err := s.store.ListRankings(ctx, t.ID, 1)
			if err != nil {
				s.log.Error("check final rankings", "tournament_id", t.ID, "error", err)
				continue
			}
			if len(rows) > 0 {
				continue
			}
		}
		if err := s.RecomputeRankings(ctx, t.ID); err != nil {
			s.log.Error("final ranking pass failed", "tournament_id", t.ID, "error", err)
		}
	}
	return nil
}

// RefreshActiveLeaderboards recomputes rankings of every ACTIVE tournament,
// picking up unrealized P&L drift between trades. Run from cron.
func (s *Service) RefreshActiveLeaderboards(ctx context.Context) {
	tournaments, err := s.store.ListTournaments(ctx)
	if err != nil {
		s.log.Error("list tournaments for refresh", "error", err)
		return
	}
	now := s.now()
	for i := range tournaments {
		t := &tournaments[i]
		if model.StatusOf(t, now) != model.TournamentActive {
			continue
		}
		if err := s.RecomputeRankings(ctx, t.ID); err != nil {
			s.log.Error("leaderboard refresh failed", "tournament_id", t.ID, "error", err)
		}
	}
}

func rankROI(pnl, starting decimal.Decimal) decimal.Decimal {
	if starting.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(starting).Mul(decimal.NewFromInt(100))
}
