package httpapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

// presentGame renders g for viewer. The join code is shown only to the
// creator. Name lookup failures degrade to ids.
func (s *Server) presentGame(ctx context.Context, g *domain.Game, viewer string, opponentAbandoned bool) c4dto.Game {
	ids := []string{g.Player1ID}
	if g.Player2ID != nil {
		ids = append(ids, *g.Player2ID)
	}
	users, err := s.store.UsersByID(ctx, ids...)
	if err != nil {
		obslog.L().Warn("present_users_failed", zap.String("game_id", g.ID), zap.Error(err))
		users = nil
	}
	name := func(id string) string {
		if u := users[id]; u != nil {
			return u.DisplayName
		}
		return ""
	}

	seat := g.PlayerOf(viewer)
	out := c4dto.Game{
		ID:       g.ID,
		PublicID: g.PublicID,
		Player1: c4dto.Player{
			UserID:       g.Player1ID,
			DisplayName:  name(g.Player1ID),
			RatingBefore: g.Player1RatingBefore,
			RatingDelta:  g.Player1RatingDelta,
			LastSeenAt:   g.Player1LastSeenAt,
		},
		Status:            string(g.Status),
		Board:             g.Board.String(),
		Turn:              int(g.Turn),
		Moves:             presentMoves(g.Moves),
		WinnerID:          g.WinnerID,
		YourSeat:          int(seat),
		OpponentAbandoned: opponentAbandoned,
		RematchGameID:     g.RematchGameID,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
		CompletedAt:       g.CompletedAt,
	}
	if seat == board.PlayerOne {
		out.JoinCode = g.JoinCode
	}
	if g.Player2ID != nil {
		out.Player2 = &c4dto.Player{
			UserID:       *g.Player2ID,
			DisplayName:  name(*g.Player2ID),
			RatingBefore: g.Player2RatingBefore,
			RatingDelta:  g.Player2RatingDelta,
			LastSeenAt:   g.Player2LastSeenAt,
		}
	}
	if g.Outcome != nil {
		v := string(*g.Outcome)
		out.Outcome = &v
	}
	if g.EndReason != nil {
		v := string(*g.EndReason)
		out.EndReason = &v
	}
	if g.RematchRequestedBy != nil {
		v := int(*g.RematchRequestedBy)
		out.RematchRequestedBy = &v
	}
	return out
}

func presentMoves(moves domain.MoveLog) []c4dto.Move {
	out := make([]c4dto.Move, 0, len(moves))
	for _, m := range moves {
		out = append(out, presentMove(m))
	}
	return out
}

func presentMove(m domain.Move) c4dto.Move {
	return c4dto.Move{
		Seq:    m.Seq,
		Column: m.Column,
		Row:    m.Row,
		Player: int(m.Player),
		UserID: m.UserID,
		At:     m.At,
	}
}

func presentUser(u *domain.User, rank *int) c4dto.User {
	return c4dto.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		IsGuest:     u.IsGuest,
		Rating:      u.Rating,
		Wins:        u.Wins,
		Losses:      u.Losses,
		Draws:       u.Draws,
		GamesPlayed: u.GamesPlayed(),
		Rank:        rank,
	}
}
