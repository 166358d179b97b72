// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
)

// FillMutation bundles every row touched by one executed fill. Stores apply
// it atomically: a failure on any part (including an insufficient wallet
// balance) leaves no partial state behind.
type FillMutation struct {
	// Order is the order record in its post-fill state. InsertOrder
	// distinguishes a first write from an update of a resting order.
	Order       *model.Order
	InsertOrder bool

	// WalletDelta is the signed cash move: negative debits (BUY), positive
	// credits (SELL). A debit past zero aborts with ErrInsufficientFunds.
	WalletDelta decimal.Decimal

	// Position is upserted when set; RemovePosition deletes an exactly
	// closed position. At most one of the two is set.
	Position       *model.Position
	RemovePosition *model.PositionKey

	// Participant carries updated tournament standing for fills inside a
	// tournament scope; nil for free-play fills.
	Participant *model.TournamentParticipant
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer on the hot read paths.
type Store interface {
	// --- Wallets ---

	// CreateWallet persists a new wallet; ErrWalletExists on duplicates.
	CreateWallet(ctx context.Context, w *model.Wallet) error

	// GetWallet retrieves a wallet by owner; ErrWalletNotFound when absent.
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)

	// AdjustWalletBalance atomically applies a signed delta and returns the
	// updated wallet. A delta that would drive the balance negative fails
	// with ErrInsufficientFunds and leaves the balance unchanged.
	AdjustWalletBalance(ctx context.Context, userID string, delta decimal.Decimal) (*model.Wallet, error)

	// --- Orders ---

	InsertOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error

	// ListOrdersByUser returns the user's orders, newest first.
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]model.Order, error)

	// ListOpenOrdersBySymbol returns resting (OPEN) orders for a symbol,
	// oldest first, for the tick-driven trigger pass.
	ListOpenOrdersBySymbol(ctx context.Context, symbol string) ([]model.Order, error)

	// --- Positions ---

	GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error)
	UpsertPosition(ctx context.Context, p *model.Position) error
	DeletePosition(ctx context.Context, key model.PositionKey) error
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)
	ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.Position, error)
	ListPositionsByTournament(ctx context.Context, tournamentID string) ([]model.Position, error)

	// ApplyFill applies one executed fill atomically (order + wallet +
	// position + participant together).
	ApplyFill(ctx context.Context, m FillMutation) error

	// --- Tournaments ---

	CreateTournament(ctx context.Context, t *model.Tournament) error
	GetTournament(ctx context.Context, id string) (*model.Tournament, error)
	UpdateTournament(ctx context.Context, t *model.Tournament) error
	ListTournaments(ctx context.Context) ([]model.Tournament, error)

	// --- Participants ---

	// InsertParticipant adds a standing row; ErrDuplicateParticipant when
	// the (tournament, user) pair already exists.
	InsertParticipant(ctx context.Context, p *model.TournamentParticipant) error
	GetParticipant(ctx context.Context, tournamentID, userID string) (*model.TournamentParticipant, error)
	UpdateParticipant(ctx context.Context, p *model.TournamentParticipant) error
	ListParticipants(ctx context.Context, tournamentID string) ([]model.TournamentParticipant, error)

	// --- Rankings (materialized leaderboard) ---

	// ReplaceRankings swaps the tournament's leaderboard rows wholesale.
	ReplaceRankings(ctx context.Context, tournamentID string, rows []model.TournamentRanking) error
	ListRankings(ctx context.Context, tournamentID string, limit int) ([]model.TournamentRanking, error)
	GetRanking(ctx context.Context, tournamentID, userID string) (*model.TournamentRanking, error)

	// --- Teams ---

	InsertTeam(ctx context.Context, t *model.Team) error
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	UpdateTeam(ctx context.Context, t *model.Team) error
	ListTeams(ctx context.Context, tournamentID string) ([]model.Team, error)
	InsertTeamMember(ctx context.Context, m *model.TeamMember) error
	ListTeamMembers(ctx context.Context, teamID string) ([]model.TeamMember, error)

	// GetTeamByMember finds the team a user belongs to within a tournament;
	// ErrTeamNotFound when the user has no team there.
	GetTeamByMember(ctx context.Context, tournamentID, userID string) (*model.Team, error)
}
