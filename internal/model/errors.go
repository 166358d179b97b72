package model

import "errors"

// Sentinel errors for domain-level error handling. Callers wrap these with
// context via fmt.Errorf("...: %w", err); the HTTP layer maps them to
// status codes. Each rejection stays distinguishable: "can't afford it"
// and "already joined" are never collapsed into one error.
var (
	ErrInsufficientFunds     = errors.New("insufficient_funds")
	ErrPriceUnavailable      = errors.New("price_unavailable")
	ErrPositionLimitExceeded = errors.New("position_limit_exceeded")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrOrderNotCancellable   = errors.New("order_not_cancellable")
	ErrInvalidTransition     = errors.New("invalid_order_transition")
	ErrTournamentNotFound    = errors.New("tournament_not_found")
	ErrTournamentNotJoinable = errors.New("tournament_not_joinable")
	ErrDuplicateParticipant  = errors.New("duplicate_participation")
	ErrTeamNotFound          = errors.New("team_not_found")
	ErrTeamNotFull           = errors.New("team_not_full")
	ErrTeamFull              = errors.New("team_full")
	ErrWalletNotFound        = errors.New("wallet_not_found")
	ErrWalletExists          = errors.New("wallet_already_exists")
	ErrPositionNotFound      = errors.New("position_not_found")
)

// ValidationError represents a request validation failure. The handler
// layer maps it to a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
