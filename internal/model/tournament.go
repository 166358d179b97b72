package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus is the lifecycle of a trading competition.
type TournamentStatus string

const (
	TournamentUpcoming         TournamentStatus = "UPCOMING"
	TournamentRegistrationOpen TournamentStatus = "REGISTRATION_OPEN"
	TournamentActive           TournamentStatus = "ACTIVE"
	TournamentCompleted        TournamentStatus = "COMPLETED"
	TournamentCancelled        TournamentStatus = "CANCELLED"
)

// TournamentType distinguishes solo and team competitions.
type TournamentType string

const (
	TournamentSolo TournamentType = "SOLO"
	TournamentTeam TournamentType = "TEAM"
)

// Tournament is a time-boxed paper-trading competition. Participants trade
// a virtual starting balance; top ranks win the real-money prize pool.
type Tournament struct {
	ID                  string          `json:"id" db:"id"`
	Name                string          `json:"name" db:"name"`
	Description         string          `json:"description,omitempty" db:"description"`
	Type                TournamentType  `json:"tournament_type" db:"tournament_type"`
	TeamSize            int             `json:"team_size,omitempty" db:"team_size"` // TEAM tournaments only
	EntryFee            decimal.Decimal `json:"entry_fee" db:"entry_fee"`
	PrizePool           decimal.Decimal `json:"prize_pool" db:"prize_pool"`
	StartingBalance     decimal.Decimal `json:"starting_balance" db:"starting_balance"`
	MaxParticipants     int             `json:"max_participants,omitempty" db:"max_participants"` // 0 = unlimited
	CurrentParticipants int             `json:"current_participants" db:"current_participants"`
	StartDate           time.Time       `json:"start_date" db:"start_date"`
	EndDate             time.Time       `json:"end_date" db:"end_date"`
	RegistrationCutoff  time.Time       `json:"registration_deadline" db:"registration_deadline"`

	// Status is a cached copy of StatusOf(t, now); StatusOf is the source
	// of truth for every decision, the stored field only serves listings.
	Status TournamentStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StatusOf derives the tournament status from the clock. CANCELLED and
// COMPLETED stick once stored; everything else follows the dates.
func StatusOf(t *Tournament, now time.Time) TournamentStatus {
	switch t.Status {
	case TournamentCancelled:
		return TournamentCancelled
	case TournamentCompleted:
		return TournamentCompleted
	}
	switch {
	case !now.Before(t.EndDate):
		return TournamentCompleted
	case !now.Before(t.StartDate):
		return TournamentActive
	case now.Before(t.RegistrationCutoff):
		return TournamentRegistrationOpen
	default:
		return TournamentUpcoming
	}
}

// IsFull reports whether the tournament reached its participant cap.
func (t *Tournament) IsFull() bool {
	return t.MaxParticipants > 0 && t.CurrentParticipants >= t.MaxParticipants
}

// RegistrationOpen reports whether a new participant may join at now.
func (t *Tournament) RegistrationOpen(now time.Time) bool {
	return StatusOf(t, now) == TournamentRegistrationOpen && !t.IsFull()
}

// TournamentParticipant is one standing row per (tournament, user). In team
// tournaments every member keeps an individual row with TeamID set; the
// team's aggregate standing is derived from member rows on demand.
type TournamentParticipant struct {
	ID              string          `json:"id" db:"id"`
	TournamentID    string          `json:"tournament_id" db:"tournament_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	TeamID          string          `json:"team_id,omitempty" db:"team_id"`
	StartingBalance decimal.Decimal `json:"starting_balance" db:"starting_balance"`
	CurrentBalance  decimal.Decimal `json:"current_balance" db:"current_balance"`
	TotalPnL        decimal.Decimal `json:"total_pnl" db:"total_pnl"`
	TotalTrades     int             `json:"total_trades" db:"total_trades"`
	WinningTrades   int             `json:"winning_trades" db:"winning_trades"`
	LosingTrades    int             `json:"losing_trades" db:"losing_trades"`
	Rank            int             `json:"rank,omitempty" db:"rank"` // 0 until first ranking pass
	JoinedAt        time.Time       `json:"joined_at" db:"joined_at"`
	LastTradeAt     time.Time       `json:"last_trade_at,omitempty" db:"last_trade_at"`
}

// ApplyTrade folds one executed trade's P&L into the standing: counters
// move by the sign of pnl (zero counts as neither win nor loss), cumulative
// P&L and current balance move by the same delta.
func (p *TournamentParticipant) ApplyTrade(pnl decimal.Decimal, at time.Time) {
	p.TotalTrades++
	p.TotalPnL = p.TotalPnL.Add(pnl)
	p.CurrentBalance = p.CurrentBalance.Add(pnl)
	switch {
	case pnl.IsPositive():
		p.WinningTrades++
	case pnl.IsNegative():
		p.LosingTrades++
	}
	p.LastTradeAt = at
}

// ROI returns cumulative P&L as a percentage of the starting balance.
func (p *TournamentParticipant) ROI() decimal.Decimal {
	return roi(p.TotalPnL, p.StartingBalance)
}

// WinRate returns winning trades as a percentage of total trades, 0 when
// no trades have been made.
func (p *TournamentParticipant) WinRate() decimal.Decimal {
	return winRate(p.WinningTrades, p.TotalTrades)
}

// TournamentRanking is a materialized leaderboard row, always derivable by
// resorting participant rows; kept separately for read efficiency. Within
// one tournament the ranks are a dense permutation 1..N.
type TournamentRanking struct {
	TournamentID   string          `json:"tournament_id" db:"tournament_id"`
	UserID         string          `json:"user_id,omitempty" db:"user_id"` // empty for team rows
	TeamID         string          `json:"team_id,omitempty" db:"team_id"`
	Name           string          `json:"name,omitempty" db:"name"` // team name for team rows
	Rank           int             `json:"rank" db:"rank"`
	TotalPnL       decimal.Decimal `json:"total_pnl" db:"total_pnl"`
	ROI            decimal.Decimal `json:"roi" db:"roi"`
	WinRate        decimal.Decimal `json:"win_rate" db:"win_rate"`
	TotalTrades    int             `json:"total_trades" db:"total_trades"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Team groups participants in a team tournament. Membership is locked once
// the team registers into the participant set.
type Team struct {
	ID           string    `json:"id" db:"id"`
	TournamentID string    `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	CaptainID    string    `json:"captain_id" db:"captain_id"`
	TotalMembers int       `json:"total_members" db:"total_members"`
	Registered   bool      `json:"registered" db:"registered"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// MemberRole distinguishes the captain from ordinary members.
type MemberRole string

const (
	RoleCaptain MemberRole = "CAPTAIN"
	RoleMember  MemberRole = "MEMBER"
)

// TeamMember is one user's membership in a team.
type TeamMember struct {
	TeamID   string     `json:"team_id" db:"team_id"`
	UserID   string     `json:"user_id" db:"user_id"`
	Role     MemberRole `json:"role" db:"role"`
	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
}

// TeamStanding is a team's aggregate result, computed on demand from the
// members' individual participant rows to avoid double bookkeeping.
type TeamStanding struct {
	TeamID          string          `json:"team_id"`
	TournamentID    string          `json:"tournament_id"`
	Name            string          `json:"name"`
	Members         int             `json:"members"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	ROI             decimal.Decimal `json:"roi"`
	WinRate         decimal.Decimal `json:"win_rate"`
}

// Recalculate refreshes the derived ROI and win-rate fields from the
// aggregated totals.
func (s *TeamStanding) Recalculate() {
	s.ROI = roi(s.TotalPnL, s.StartingBalance)
	s.WinRate = winRate(s.WinningTrades, s.TotalTrades)
}

var hundred = decimal.NewFromInt(100)

func roi(pnl, starting decimal.Decimal) decimal.Decimal {
	if starting.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(starting).Mul(hundred)
}

func winRate(winning, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(winning)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(hundred)
}
