package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
)

// PostgresStore is the pgx-backed Store. NUMERIC columns round-trip as text
// so decimal values never pass through float64.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Init creates the schema when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	user_id           TEXT PRIMARY KEY,
	balance           NUMERIC NOT NULL,
	currency          TEXT NOT NULL DEFAULT 'INR',
	total_deposits    NUMERIC NOT NULL DEFAULT 0,
	total_withdrawals NUMERIC NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	tournament_id     TEXT NOT NULL DEFAULT '',
	symbol            TEXT NOT NULL,
	instrument_type   TEXT NOT NULL,
	lot_size          BIGINT NOT NULL DEFAULT 1,
	side              TEXT NOT NULL,
	order_type        TEXT NOT NULL,
	quantity          BIGINT NOT NULL,
	limit_price       NUMERIC NOT NULL DEFAULT 0,
	trigger_price     NUMERIC NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	executed_price    NUMERIC NOT NULL DEFAULT 0,
	executed_quantity BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	executed_at       TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_open ON orders (symbol) WHERE status = 'OPEN';

CREATE TABLE IF NOT EXISTS positions (
	user_id         TEXT NOT NULL,
	tournament_id   TEXT NOT NULL DEFAULT '',
	symbol          TEXT NOT NULL,
	instrument_type TEXT NOT NULL,
	lot_size        BIGINT NOT NULL DEFAULT 1,
	quantity        BIGINT NOT NULL,
	average_price   NUMERIC NOT NULL,
	mark_price      NUMERIC NOT NULL,
	realized_pnl    NUMERIC NOT NULL DEFAULT 0,
	unrealized_pnl  NUMERIC NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, tournament_id, symbol)
);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions (symbol);
CREATE INDEX IF NOT EXISTS idx_positions_tournament ON positions (tournament_id);

CREATE TABLE IF NOT EXISTS tournaments (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	tournament_type       TEXT NOT NULL,
	team_size             INT NOT NULL DEFAULT 0,
	entry_fee             NUMERIC NOT NULL DEFAULT 0,
	prize_pool            NUMERIC NOT NULL DEFAULT 0,
	starting_balance      NUMERIC NOT NULL,
	max_participants      INT NOT NULL DEFAULT 0,
	current_participants  INT NOT NULL DEFAULT 0,
	start_date            TIMESTAMPTZ NOT NULL,
	end_date              TIMESTAMPTZ NOT NULL,
	registration_deadline TIMESTAMPTZ NOT NULL,
	status                TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tournament_participants (
	id               TEXT PRIMARY KEY,
	tournament_id    TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	team_id          TEXT NOT NULL DEFAULT '',
	starting_balance NUMERIC NOT NULL,
	current_balance  NUMERIC NOT NULL,
	total_pnl        NUMERIC NOT NULL DEFAULT 0,
	total_trades     INT NOT NULL DEFAULT 0,
	winning_trades   INT NOT NULL DEFAULT 0,
	losing_trades    INT NOT NULL DEFAULT 0,
	rank             INT NOT NULL DEFAULT 0,
	joined_at        TIMESTAMPTZ NOT NULL,
	last_trade_at    TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	UNIQUE (tournament_id, user_id)
);

CREATE TABLE IF NOT EXISTS tournament_rankings (
	tournament_id   TEXT NOT NULL,
	rank            INT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	team_id         TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT '',
	total_pnl       NUMERIC NOT NULL,
	roi             NUMERIC NOT NULL,
	win_rate        NUMERIC NOT NULL,
	total_trades    INT NOT NULL,
	current_balance NUMERIC NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tournament_id, rank)
);

CREATE TABLE IF NOT EXISTS teams (
	id            TEXT PRIMARY KEY,
	tournament_id TEXT NOT NULL,
	name          TEXT NOT NULL,
	captain_id    TEXT NOT NULL,
	total_members INT NOT NULL DEFAULT 0,
	registered    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (tournament_id, name)
);

CREATE TABLE IF NOT EXISTS team_members (
	team_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (team_id, user_id)
);
`

// querier abstracts pool and transaction for shared statement helpers.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Wallets ---

func (s *PostgresStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, currency, total_deposits, total_withdrawals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.UserID, w.Balance.String(), w.Currency,
		w.TotalDeposits.String(), w.TotalWithdrawals.String(),
		w.CreatedAt, w.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrWalletExists
	}
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return getWallet(ctx, s.pool, userID, false)
}

func getWallet(ctx context.Context, q querier, userID string, forUpdate bool) (*model.Wallet, error) {
	query := `
		SELECT user_id, balance::text, currency, total_deposits::text, total_withdrawals::text, created_at, updated_at
		FROM wallets WHERE user_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var (
		w                       model.Wallet
		balance, deposits, wdls string
	)
	err := q.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &balance, &w.Currency, &deposits, &wdls, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if w.Balance, err = parseDec(balance); err != nil {
		return nil, err
	}
	if w.TotalDeposits, err = parseDec(deposits); err != nil {
		return nil, err
	}
	if w.TotalWithdrawals, err = parseDec(wdls); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) AdjustWalletBalance(ctx context.Context, userID string, delta decimal.Decimal) (*model.Wallet, error) {
	var out *model.Wallet
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		w, err := adjustWallet(ctx, tx, userID, delta)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

// adjustWallet locks the wallet row, applies the delta and rejects debits
// past zero. Runs inside the caller's transaction.
func adjustWallet(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal) (*model.Wallet, error) {
	w, err := getWallet(ctx, tx, userID, true)
	if err != nil {
		return nil, err
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return nil, model.ErrInsufficientFunds
	}
	now := time.Now()
	_, err = tx.Exec(ctx,
		`UPDATE wallets SET balance = $1, updated_at = $2 WHERE user_id = $3`,
		next.String(), now, userID)
	if err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}
	w.Balance = next
	w.UpdatedAt = now
	return w, nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Orders ---

const orderColumns = `id, user_id, tournament_id, symbol, instrument_type, lot_size, side, order_type,
	quantity, limit_price::text, trigger_price::text, status, reason,
	executed_price::text, executed_quantity, created_at, executed_at, updated_at`

func scanOrder(row scanner) (*model.Order, error) {
	var (
		o                    model.Order
		limitP, trigP, execP string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.TournamentID, &o.Symbol, &o.Instrument, &o.LotSize,
		&o.Side, &o.Type, &o.Quantity, &limitP, &trigP, &o.Status, &o.Reason,
		&execP, &o.ExecutedQuantity, &o.CreatedAt, &o.ExecutedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.LimitPrice, err = parseDec(limitP); err != nil {
		return nil, err
	}
	if o.TriggerPrice, err = parseDec(trigP); err != nil {
		return nil, err
	}
	if o.ExecutedPrice, err = parseDec(execP); err != nil {
		return nil, err
	}
	return &o, nil
}

func insertOrder(ctx context.Context, q querier, o *model.Order) error {
	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, user_id, tournament_id, symbol, instrument_type, lot_size, side, order_type,
			quantity, limit_price, trigger_price, status, reason, executed_price, executed_quantity,
			created_at, executed_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.UserID, o.TournamentID, o.Symbol, o.Instrument, o.LotSize, o.Side, o.Type,
		o.Quantity, o.LimitPrice.String(), o.TriggerPrice.String(), o.Status, o.Reason,
		o.ExecutedPrice.String(), o.ExecutedQuantity, o.CreatedAt, o.ExecutedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func updateOrder(ctx context.Context, q querier, o *model.Order) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders SET status = $1, reason = $2, executed_price = $3, executed_quantity = $4,
			executed_at = $5, updated_at = $6
		WHERE id = $7`,
		o.Status, o.Reason, o.ExecutedPrice.String(), o.ExecutedQuantity,
		o.ExecutedAt, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	return insertOrder(ctx, s.pool, o)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	return updateOrder(ctx, s.pool, o)
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return collectOrders(rows)
}

func (s *PostgresStore) ListOpenOrdersBySymbol(ctx context.Context, symbol string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE symbol = $1 AND status = 'OPEN' ORDER BY created_at`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	out := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// --- Positions ---

const positionColumns = `user_id, tournament_id, symbol, instrument_type, lot_size, quantity,
	average_price::text, mark_price::text, realized_pnl::text, unrealized_pnl::text, created_at, updated_at`

func scanPosition(row scanner) (*model.Position, error) {
	var (
		p                        model.Position
		avg, mark, realized, unr string
	)
	err := row.Scan(&p.UserID, &p.TournamentID, &p.Symbol, &p.Instrument, &p.LotSize, &p.Quantity,
		&avg, &mark, &realized, &unr, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.AveragePrice, err = parseDec(avg); err != nil {
		return nil, err
	}
	if p.MarkPrice, err = parseDec(mark); err != nil {
		return nil, err
	}
	if p.RealizedPnL, err = parseDec(realized); err != nil {
		return nil, err
	}
	if p.UnrealizedPnL, err = parseDec(unr); err != nil {
		return nil, err
	}
	return &p, nil
}

func upsertPosition(ctx context.Context, q querier, p *model.Position) error {
	_, err := q.Exec(ctx, `
		INSERT INTO positions (user_id, tournament_id, symbol, instrument_type, lot_size, quantity,
			average_price, mark_price, realized_pnl, unrealized_pnl, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id, tournament_id, symbol) DO UPDATE SET
			instrument_type = EXCLUDED.instrument_type,
			lot_size = EXCLUDED.lot_size,
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			mark_price = EXCLUDED.mark_price,
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.TournamentID, p.Symbol, p.Instrument, p.LotSize, p.Quantity,
		p.AveragePrice.String(), p.MarkPrice.String(), p.RealizedPnL.String(),
		p.UnrealizedPnL.String(), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func deletePosition(ctx context.Context, q querier, key model.PositionKey) error {
	_, err := q.Exec(ctx,
		`DELETE FROM positions WHERE user_id = $1 AND tournament_id = $2 AND symbol = $3`,
		key.UserID, key.TournamentID, key.Symbol)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE user_id = $1 AND tournament_id = $2 AND symbol = $3`,
		key.UserID, key.TournamentID, key.Symbol)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	return upsertPosition(ctx, s.pool, p)
}

func (s *PostgresStore) DeletePosition(ctx context.Context, key model.PositionKey) error {
	return deletePosition(ctx, s.pool, key)
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return collectPositions(rows)
}

func (s *PostgresStore) ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+` FROM positions WHERE symbol = $1 ORDER BY user_id`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list positions by symbol: %w", err)
	}
	return collectPositions(rows)
}

func (s *PostgresStore) ListPositionsByTournament(ctx context.Context, tournamentID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+` FROM positions WHERE tournament_id = $1 ORDER BY user_id, symbol`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list positions by tournament: %w", err)
	}
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	defer rows.Close()
	out := make([]model.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// --- Fills ---

func (s *PostgresStore) ApplyFill(ctx context.Context, m FillMutation) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		// The wallet row lock serializes concurrent fills per user; the
		// balance check aborts the whole transaction on a shortfall.
		if _, err := adjustWallet(ctx, tx, m.Order.UserID, m.WalletDelta); err != nil {
			return err
		}
		if m.InsertOrder {
			if err := insertOrder(ctx, tx, m.Order); err != nil {
				return err
			}
		} else if err := updateOrder(ctx, tx, m.Order); err != nil {
			return err
		}
		if m.Position != nil {
			if err := upsertPosition(ctx, tx, m.Position); err != nil {
				return err
			}
		}
		if m.RemovePosition != nil {
			if err := deletePosition(ctx, tx, *m.RemovePosition); err != nil {
				return err
			}
		}
		if m.Participant != nil {
			if err := updateParticipant(ctx, tx, m.Participant); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Tournaments ---

const tournamentColumns = `id, name, description, tournament_type, team_size, entry_fee::text, prize_pool::text,
	starting_balance::text, max_participants, current_participants, start_date, end_date,
	registration_deadline, status, created_at, updated_at`

func scanTournament(row scanner) (*model.Tournament, error) {
	var (
		t                  model.Tournament
		fee, pool, balance string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Type, &t.TeamSize, &fee, &pool,
		&balance, &t.MaxParticipants, &t.CurrentParticipants, &t.StartDate, &t.EndDate,
		&t.RegistrationCutoff, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.EntryFee, err = parseDec(fee); err != nil {
		return nil, err
	}
	if t.PrizePool, err = parseDec(pool); err != nil {
		return nil, err
	}
	if t.StartingBalance, err = parseDec(balance); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTournament(ctx context.Context, t *model.Tournament) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tournaments (id, name, description, tournament_type, team_size, entry_fee, prize_pool,
			starting_balance, max_participants, current_participants, start_date, end_date,
			registration_deadline, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.Name, t.Description, t.Type, t.TeamSize, t.EntryFee.String(), t.PrizePool.String(),
		t.StartingBalance.String(), t.MaxParticipants, t.CurrentParticipants, t.StartDate, t.EndDate,
		t.RegistrationCutoff, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tournament: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTournament(ctx context.Context, id string) (*model.Tournament, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id)
	t, err := scanTournament(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tournament: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTournament(ctx context.Context, t *model.Tournament) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tournaments SET name = $1, description = $2, current_participants = $3,
			prize_pool = $4, status = $5, updated_at = $6
		WHERE id = $7`,
		t.Name, t.Description, t.CurrentParticipants, t.PrizePool.String(), t.Status, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update tournament: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTournamentNotFound
	}
	return nil
}

func (s *PostgresStore) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tournamentColumns+` FROM tournaments ORDER BY start_date`)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()
	out := make([]model.Tournament, 0)
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// --- Participants ---

const participantColumns = `id, tournament_id, user_id, team_id, starting_balance::text, current_balance::text,
	total_pnl::text, total_trades, winning_trades, losing_trades, rank, joined_at, last_trade_at`

func scanParticipant(row scanner) (*model.TournamentParticipant, error) {
	var (
		p                      model.TournamentParticipant
		starting, current, pnl string
	)
	err := row.Scan(&p.ID, &p.TournamentID, &p.UserID, &p.TeamID, &starting, &current,
		&pnl, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades, &p.Rank, &p.JoinedAt, &p.LastTradeAt)
	if err != nil {
		return nil, err
	}
	if p.StartingBalance, err = parseDec(starting); err != nil {
		return nil, err
	}
	if p.CurrentBalance, err = parseDec(current); err != nil {
		return nil, err
	}
	if p.TotalPnL, err = parseDec(pnl); err != nil {
		return nil, err
	}
	return &p, nil
}

func updateParticipant(ctx context.Context, q querier, p *model.TournamentParticipant) error {
	tag, err := q.Exec(ctx, `
		UPDATE tournament_participants SET current_balance = $1, total_pnl = $2, total_trades = $3,
			winning_trades = $4, losing_trades = $5, rank = $6, last_trade_at = $7
		WHERE tournament_id = $8 AND user_id = $9`,
		p.CurrentBalance.String(), p.TotalPnL.String(), p.TotalTrades,
		p.WinningTrades, p.LosingTrades, p.Rank, p.LastTradeAt,
		p.TournamentID, p.UserID)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTournamentNotFound
	}
	return nil
}

func (s *PostgresStore) InsertParticipant(ctx context.Context, p *model.TournamentParticipant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tournament_participants (id, tournament_id, user_id, team_id, starting_balance,
			current_balance, total_pnl, total_trades, winning_trades, losing_trades, rank,
			joined_at, last_trade_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.TournamentID, p.UserID, p.TeamID, p.StartingBalance.String(),
		p.CurrentBalance.String(), p.TotalPnL.String(), p.TotalTrades, p.WinningTrades,
		p.LosingTrades, p.Rank, p.JoinedAt, p.LastTradeAt)
	if isUniqueViolation(err) {
		return model.ErrDuplicateParticipant
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetParticipant(ctx context.Context, tournamentID, userID string) (*model.TournamentParticipant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM tournament_participants
		WHERE tournament_id = $1 AND user_id = $2`, tournamentID, userID)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateParticipant(ctx context.Context, p *model.TournamentParticipant) error {
	return updateParticipant(ctx, s.pool, p)
}

func (s *PostgresStore) ListParticipants(ctx context.Context, tournamentID string) ([]model.TournamentParticipant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+participantColumns+` FROM tournament_participants
		WHERE tournament_id = $1 ORDER BY user_id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	out := make([]model.TournamentParticipant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// --- Rankings ---

func (s *PostgresStore) ReplaceRankings(ctx context.Context, tournamentID string, rankingRows []model.TournamentRanking) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tournament_rankings WHERE tournament_id = $1`, tournamentID); err != nil {
			return fmt.Errorf("clear rankings: %w", err)
		}
		for _, r := range rankingRows {
			_, err := tx.Exec(ctx, `
				INSERT INTO tournament_rankings (tournament_id, rank, user_id, team_id, name,
					total_pnl, roi, win_rate, total_trades, current_balance, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				tournamentID, r.Rank, r.UserID, r.TeamID, r.Name,
				r.TotalPnL.String(), r.ROI.String(), r.WinRate.String(),
				r.TotalTrades, r.CurrentBalance.String(), r.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert ranking: %w", err)
			}
		}
		return nil
	})
}

const rankingColumns = `tournament_id, rank, user_id, team_id, name, total_pnl::text, roi::text,
	win_rate::text, total_trades, current_balance::text, updated_at`

func scanRanking(row scanner) (*model.TournamentRanking, error) {
	var (
		r                      model.TournamentRanking
		pnl, roi, winRate, bal string
	)
	err := row.Scan(&r.TournamentID, &r.Rank, &r.UserID, &r.TeamID, &r.Name, &pnl, &roi,
		&winRate, &r.TotalTrades, &bal, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if r.TotalPnL, err = parseDec(pnl); err != nil {
		return nil, err
	}
	if r.ROI, err = parseDec(roi); err != nil {
		return nil, err
	}
	if r.WinRate, err = parseDec(winRate); err != nil {
		return nil, err
	}
	if r.CurrentBalance, err = parseDec(bal); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListRankings(ctx context.Context, tournamentID string, limit int) ([]model.TournamentRanking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+rankingColumns+` FROM tournament_rankings
		WHERE tournament_id = $1 ORDER BY rank LIMIT $2`, tournamentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}
	defer rows.Close()
	out := make([]model.TournamentRanking, 0)
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRanking(ctx context.Context, tournamentID, userID string) (*model.TournamentRanking, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+rankingColumns+` FROM tournament_rankings
		WHERE tournament_id = $1 AND user_id = $2`, tournamentID, userID)
	r, err := scanRanking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ranking: %w", err)
	}
	return r, nil
}

// --- Teams ---

func (s *PostgresStore) InsertTeam(ctx context.Context, t *model.Team) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teams (id, tournament_id, name, captain_id, total_members, registered, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.TournamentID, t.Name, t.CaptainID, t.TotalMembers, t.Registered, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := s.pool.QueryRow(ctx, `
		SELECT id, tournament_id, name, captain_id, total_members, registered, created_at
		FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.TournamentID, &t.Name, &t.CaptainID, &t.TotalMembers, &t.Registered, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTeam(ctx context.Context, t *model.Team) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE teams SET name = $1, total_members = $2, registered = $3 WHERE id = $4`,
		t.Name, t.TotalMembers, t.Registered, t.ID)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTeamNotFound
	}
	return nil
}

func (s *PostgresStore) ListTeams(ctx context.Context, tournamentID string) ([]model.Team, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tournament_id, name, captain_id, total_members, registered, created_at
		FROM teams WHERE tournament_id = $1 ORDER BY id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()
	out := make([]model.Team, 0)
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.TournamentID, &t.Name, &t.CaptainID,
			&t.TotalMembers, &t.Registered, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertTeamMember(ctx context.Context, m *model.TeamMember) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES ($1,$2,$3,$4)`,
		m.TeamID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTeamMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = $1 ORDER BY joined_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()
	out := make([]model.TeamMember, 0)
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetTeamByMember(ctx context.Context, tournamentID, userID string) (*model.Team, error) {
	var t model.Team
	err := s.pool.QueryRow(ctx, `
		SELECT t.id, t.tournament_id, t.name, t.captain_id, t.total_members, t.registered, t.created_at
		FROM teams t JOIN team_members m ON m.team_id = t.id
		WHERE t.tournament_id = $1 AND m.user_id = $2`, tournamentID, userID).
		Scan(&t.ID, &t.TournamentID, &t.Name, &t.CaptainID, &t.TotalMembers, &t.Registered, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team by member: %w", err)
	}
	return &t, nil
}
