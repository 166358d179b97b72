package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradearena/trading-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache on the
// hot read paths: leaderboards and per-user position lists. Writes go to
// the primary and invalidate the affected keys. Cache failures degrade to
// primary reads and are logged, never surfaced.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// NewCachedStore layers a Redis cache over primary.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	return &CachedStore{Store: primary, rdb: rdb, ttl: ttl, log: log}
}

func leaderboardKey(tournamentID string, limit int) string {
	return fmt.Sprintf("lb:%s:%d", tournamentID, limit)
}

func positionsKey(userID string) string {
	return "pos:" + userID
}

func (s *CachedStore) ListRankings(ctx context.Context, tournamentID string, limit int) ([]model.TournamentRanking, error) {
	key := leaderboardKey(tournamentID, limit)
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var rows []model.TournamentRanking
		if err := json.Unmarshal(raw, &rows); err == nil {
			return rows, nil
		}
	}
	rows, err := s.Store.ListRankings(ctx, tournamentID, limit)
	if err != nil {
		return nil, err
	}
	s.put(ctx, key, rows)
	return rows, nil
}

func (s *CachedStore) ReplaceRankings(ctx context.Context, tournamentID string, rows []model.TournamentRanking) error {
	if err := s.Store.ReplaceRankings(ctx, tournamentID, rows); err != nil {
		return err
	}
	s.invalidateLeaderboard(ctx, tournamentID)
	return nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	key := positionsKey(userID)
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var positions []model.Position
		if err := json.Unmarshal(raw, &positions); err == nil {
			return positions, nil
		}
	}
	positions, err := s.Store.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.put(ctx, key, positions)
	return positions, nil
}

func (s *CachedStore) ApplyFill(ctx context.Context, m FillMutation) error {
	if err := s.Store.ApplyFill(ctx, m); err != nil {
		return err
	}
	s.drop(ctx, positionsKey(m.Order.UserID))
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.Store.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.drop(ctx, positionsKey(p.UserID))
	return nil
}

func (s *CachedStore) DeletePosition(ctx context.Context, key model.PositionKey) error {
	if err := s.Store.DeletePosition(ctx, key); err != nil {
		return err
	}
	s.drop(ctx, positionsKey(key.UserID))
	return nil
}

func (s *CachedStore) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn("cache set failed", "key", key, "error", err)
	}
}

func (s *CachedStore) drop(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

// invalidateLeaderboard removes every limit-variant of the tournament's
// leaderboard key.
func (s *CachedStore) invalidateLeaderboard(ctx context.Context, tournamentID string) {
	iter := s.rdb.Scan(ctx, 0, "lb:"+tournamentID+":*", 64).Iterator()
	keys := make([]string, 0, 4)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("cache scan failed", "tournament_id", tournamentID, "error", err)
		return
	}
	if len(keys) > 0 {
		s.drop(ctx, keys...)
	}
}
