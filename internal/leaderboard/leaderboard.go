// Package leaderboard mirrors user ratings into a Redis sorted set so the top
// of the table can be served without scanning the users table.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
)

const DefaultKey = "c4:leaderboard"

var ErrNotRanked = errors.New("leaderboard: user not ranked")

// Entry is one row of the table. Rank starts at 1.
type Entry struct {
	Rank   int
	UserID string
	Rating int
}

type Board struct {
	rdb *redis.Client
	key string
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("leaderboard: redis url required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func New(rdb *redis.Client, key string) *Board {
	if key == "" {
		key = DefaultKey
	}
	return &Board{rdb: rdb, key: key}
}

// GameFinalized applies the game's rating deltas. Errors are logged; the
// table is rebuilt from the database periodically.
func (b *Board) GameFinalized(ctx context.Context, g *domain.Game) {
	if err := b.Record(ctx, g); err != nil {
		obslog.L().Warn("leaderboard_record_failed", zap.String("game_id", g.ID), zap.Error(err))
	}
}

// Record seeds each player at their pre-game rating if absent, then adds the
// delta. Games without a rating result are ignored.
func (b *Board) Record(ctx context.Context, g *domain.Game) error {
	if g == nil || !g.Finalized() || g.Player2ID == nil {
		return nil
	}
	type side struct {
		id     string
		before *int
		delta  *int
	}
	sides := []side{
		{g.Player1ID, g.RatingBefore(board.PlayerOne), g.Player1RatingDelta},
		{*g.Player2ID, g.RatingBefore(board.PlayerTwo), g.Player2RatingDelta},
	}
	_, err := b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, s := range sides {
			if s.before == nil || s.delta == nil {
				continue
			}
			p.ZAddNX(ctx, b.key, redis.Z{Score: float64(*s.before), Member: s.id})
			p.ZIncrBy(ctx, b.key, float64(*s.delta), s.id)
		}
		return nil
	})
	return err
}

// Top returns the n highest rated users.
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, b.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Entry{Rank: i + 1, UserID: id, Rating: int(z.Score)})
	}
	return out, nil
}

// Rank returns userID's position or ErrNotRanked.
func (b *Board) Rank(ctx context.Context, userID string) (*Entry, error) {
	r, err := b.rdb.ZRevRank(ctx, b.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotRanked
	}
	if err != nil {
		return nil, err
	}
	score, err := b.rdb.ZScore(ctx, b.key, userID).Result()
	if err != nil {
		return nil, err
	}
	return &Entry{Rank: int(r) + 1, UserID: userID, Rating: int(score)}, nil
}

// Rebuild replaces the table with users.
func (b *Board) Rebuild(ctx context.Context, users []domain.User) error {
	_, err := b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, b.key)
		if len(users) == 0 {
			return nil
		}
		zs := make([]redis.Z, 0, len(users))
		for _, u := range users {
			zs = append(zs, redis.Z{Score: float64(u.Rating), Member: u.ID})
		}
		p.ZAdd(ctx, b.key, zs...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	obslog.L().Info("leaderboard_rebuilt", zap.Int("users", len(users)))
	return nil
}

func (b *Board) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }
