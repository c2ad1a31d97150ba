package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/leaderboard"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

func (s *Server) me(c *fiber.Ctx) error {
	u := currentUser(c)
	var rank *int
	if s.ranking != nil {
		e, err := s.ranking.Rank(c.UserContext(), u.ID)
		switch {
		case err == nil:
			rank = &e.Rank
		case !errors.Is(err, leaderboard.ErrNotRanked):
			obslog.L().Warn("leaderboard_rank_failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return c.JSON(presentUser(u, rank))
}

// leaderboard serves from the Redis cache when configured and falls back to
// the users table.
func (s *Server) leaderboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	limit := c.QueryInt("limit", s.boardSize)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLeaderboard {
		limit = maxLeaderboard
	}

	if s.ranking != nil {
		top, err := s.ranking.Top(ctx, limit)
		if err == nil && len(top) > 0 {
			ids := make([]string, len(top))
			for i, e := range top {
				ids[i] = e.UserID
			}
			users, uerr := s.store.UsersByID(ctx, ids...)
			if uerr != nil {
				return s.fail(c, uerr)
			}
			out := make([]c4dto.LeaderboardEntry, 0, len(top))
			for _, e := range top {
				entry := c4dto.LeaderboardEntry{Rank: e.Rank, UserID: e.UserID, Rating: e.Rating}
				if u := users[e.UserID]; u != nil {
					entry.DisplayName = u.DisplayName
				}
				out = append(out, entry)
			}
			return c.JSON(c4dto.LeaderboardResponse{Entries: out})
		}
		if err != nil {
			obslog.L().Warn("leaderboard_cache_failed", zap.Error(err))
		}
	}

	users, err := s.store.TopUsers(ctx, limit)
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]c4dto.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		out = append(out, c4dto.LeaderboardEntry{Rank: i + 1, UserID: u.ID, DisplayName: u.DisplayName, Rating: u.Rating})
	}
	return c.JSON(c4dto.LeaderboardResponse{Entries: out})
}
