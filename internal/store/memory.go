package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
)

// MemoryStore is an in-memory Store used in tests and single-node
// development runs. All methods copy on the way in and out so callers can
// never alias internal state.
type MemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]*model.Wallet
	orders       map[string]*model.Order
	orderIDs     []string // insertion order
	positions    map[model.PositionKey]*model.Position
	tournaments  map[string]*model.Tournament
	participants map[string]map[string]*model.TournamentParticipant // tournamentID -> userID
	rankings     map[string][]model.TournamentRanking
	teams        map[string]*model.Team
	teamMembers  map[string][]model.TeamMember
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*model.Wallet),
		orders:       make(map[string]*model.Order),
		positions:    make(map[model.PositionKey]*model.Position),
		tournaments:  make(map[string]*model.Tournament),
		participants: make(map[string]map[string]*model.TournamentParticipant),
		rankings:     make(map[string][]model.TournamentRanking),
		teams:        make(map[string]*model.Team),
		teamMembers:  make(map[string][]model.TeamMember),
	}
}

var _ Store = (*MemoryStore)(nil)

// --- Wallets ---

func (s *MemoryStore) CreateWallet(_ context.Context, w *model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[w.UserID]; ok {
		return model.ErrWalletExists
	}
	cp := *w
	s.wallets[w.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, userID string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return nil, model.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) AdjustWalletBalance(_ context.Context, userID string, delta decimal.Decimal) (*model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.adjustWalletLocked(userID, delta)
	if err != nil {
		return nil, err
	}
	cp := *w
	return &cp, nil
}

// adjustWalletLocked mutates the stored wallet; the caller holds mu.
func (s *MemoryStore) adjustWalletLocked(userID string, delta decimal.Decimal) (*model.Wallet, error) {
	w, ok := s.wallets[userID]
	if !ok {
		return nil, model.ErrWalletNotFound
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return nil, model.ErrInsufficientFunds
	}
	w.Balance = next
	w.UpdatedAt = time.Now()
	return w, nil
}

// --- Orders ---

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertOrderLocked(o)
	return nil
}

func (s *MemoryStore) insertOrderLocked(o *model.Order) {
	cp := *o
	s.orders[o.ID] = &cp
	s.orderIDs = append(s.orderIDs, o.ID)
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return model.ErrOrderNotFound
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string, limit int) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0)
	for i := len(s.orderIDs) - 1; i >= 0; i-- {
		o := s.orders[s.orderIDs[i]]
		if o.UserID != userID {
			continue
		}
		out = append(out, *o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOpenOrdersBySymbol(_ context.Context, symbol string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0)
	for _, id := range s.orderIDs {
		o := s.orders[id]
		if o.Symbol == symbol && o.Status == model.StatusOpen {
			out = append(out, *o)
		}
	}
	return out, nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, key model.PositionKey) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[key]
	if !ok {
		return nil, model.ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.Key()] = &cp
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, key model.PositionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, key)
	return nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterPositions(func(p *model.Position) bool { return p.UserID == userID }), nil
}

func (s *MemoryStore) ListPositionsBySymbol(_ context.Context, symbol string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterPositions(func(p *model.Position) bool { return p.Symbol == symbol }), nil
}

func (s *MemoryStore) ListPositionsByTournament(_ context.Context, tournamentID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterPositions(func(p *model.Position) bool { return p.TournamentID == tournamentID }), nil
}

func (s *MemoryStore) filterPositions(keep func(*model.Position) bool) []model.Position {
	out := make([]model.Position, 0)
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// --- Fills ---

func (s *MemoryStore) ApplyFill(_ context.Context, m FillMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Wallet first: the balance check is the only part that can fail, and
	// failing before any write keeps the mutation atomic.
	if _, err := s.adjustWalletLocked(m.Order.UserID, m.WalletDelta); err != nil {
		return err
	}

	if m.Order != nil {
		if m.InsertOrder {
			s.insertOrderLocked(m.Order)
		} else {
			cp := *m.Order
			s.orders[m.Order.ID] = &cp
		}
	}
	if m.Position != nil {
		cp := *m.Position
		s.positions[m.Position.Key()] = &cp
	}
	if m.RemovePosition != nil {
		delete(s.positions, *m.RemovePosition)
	}
	if m.Participant != nil {
		s.putParticipantLocked(m.Participant)
	}
	return nil
}

// --- Tournaments ---

func (s *MemoryStore) CreateTournament(_ context.Context, t *model.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tournaments[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTournament(_ context.Context, id string) (*model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, model.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTournament(_ context.Context, t *model.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[t.ID]; !ok {
		return model.ErrTournamentNotFound
	}
	cp := *t
	s.tournaments[t.ID] = &cp
	return nil
}

func (s *MemoryStore) ListTournaments(_ context.Context) ([]model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// --- Participants ---

func (s *MemoryStore) InsertParticipant(_ context.Context, p *model.TournamentParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := s.participants[p.TournamentID]
	if byUser == nil {
		byUser = make(map[string]*model.TournamentParticipant)
		s.participants[p.TournamentID] = byUser
	}
	if _, ok := byUser[p.UserID]; ok {
		return model.ErrDuplicateParticipant
	}
	cp := *p
	byUser[p.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, tournamentID, userID string) (*model.TournamentParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[tournamentID][userID]
	if !ok {
		return nil, model.ErrTournamentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateParticipant(_ context.Context, p *model.TournamentParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.TournamentID][p.UserID]; !ok {
		return model.ErrTournamentNotFound
	}
	s.putParticipantLocked(p)
	return nil
}

func (s *MemoryStore) putParticipantLocked(p *model.TournamentParticipant) {
	byUser := s.participants[p.TournamentID]
	if byUser == nil {
		byUser = make(map[string]*model.TournamentParticipant)
		s.participants[p.TournamentID] = byUser
	}
	cp := *p
	byUser[p.UserID] = &cp
}

func (s *MemoryStore) ListParticipants(_ context.Context, tournamentID string) ([]model.TournamentParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TournamentParticipant, 0, len(s.participants[tournamentID]))
	for _, p := range s.participants[tournamentID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// --- Rankings ---

func (s *MemoryStore) ReplaceRankings(_ context.Context, tournamentID string, rows []model.TournamentRanking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]model.TournamentRanking, len(rows))
	copy(cp, rows)
	s.rankings[tournamentID] = cp
	return nil
}

func (s *MemoryStore) ListRankings(_ context.Context, tournamentID string, limit int) ([]model.TournamentRanking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rankings[tournamentID]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]model.TournamentRanking, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MemoryStore) GetRanking(_ context.Context, tournamentID, userID string) (*model.TournamentRanking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rankings[tournamentID] {
		if r.UserID == userID {
			cp := r
			return &cp, nil
		}
	}
	return nil, model.ErrTournamentNotFound
}

// --- Teams ---

func (s *MemoryStore) InsertTeam(_ context.Context, t *model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.teams[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTeam(_ context.Context, id string) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, model.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTeam(_ context.Context, t *model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[t.ID]; !ok {
		return model.ErrTeamNotFound
	}
	cp := *t
	s.teams[t.ID] = &cp
	return nil
}

func (s *MemoryStore) ListTeams(_ context.Context, tournamentID string) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Team, 0)
	for _, t := range s.teams {
		if t.TournamentID == tournamentID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) InsertTeamMember(_ context.Context, m *model.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamMembers[m.TeamID] = append(s.teamMembers[m.TeamID], *m)
	return nil
}

func (s *MemoryStore) ListTeamMembers(_ context.Context, teamID string) ([]model.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.teamMembers[teamID]
	out := make([]model.TeamMember, len(members))
	copy(out, members)
	return out, nil
}

func (s *MemoryStore) GetTeamByMember(_ context.Context, tournamentID, userID string) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for teamID, members := range s.teamMembers {
		team, ok := s.teams[teamID]
		if !ok || team.TournamentID != tournamentID {
			continue
		}
		for _, m := range members {
			if m.UserID == userID {
				cp := *team
				return &cp, nil
			}
		}
	}
	return nil, model.ErrTeamNotFound
}
