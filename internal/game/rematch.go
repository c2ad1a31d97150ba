package game

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store"
)

type RematchStatus string

const (
	RematchRequested RematchStatus = "requested"
	RematchAccepted  RematchStatus = "accepted"
)

// RematchResult carries the new game when the rematch is accepted.
type RematchResult struct {
	Status RematchStatus
	Game   *domain.Game
}

// RequestRematch records the first request on a finished game and, when the
// other player asks too, creates the follow-up game with seats swapped. The
// original game is linked to at most one rematch.
func (e *Engine) RequestRematch(ctx context.Context, gameID, userID string) (*RematchResult, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !g.Status.Terminal() {
		return nil, ErrNotFinished
	}
	if !g.Started() {
		return nil, ErrNotStarted
	}
	seat := g.PlayerOf(userID)
	if seat == 0 {
		return nil, ErrNotInGame
	}
	return e.rematch(ctx, g, seat, true)
}

func (e *Engine) rematch(ctx context.Context, g *domain.Game, seat board.Player, retry bool) (*RematchResult, error) {
	if g.RematchGameID != nil {
		return e.linkedRematch(ctx, g)
	}
	if g.RematchRequestedBy == nil {
		err := e.store.RecordRematchRequest(ctx, g.ID, seat, e.now())
		switch {
		case err == nil:
			obslog.L().Info("rematch_request", zap.String("game_id", g.ID), zap.Int("seat", int(seat)))
			return &RematchResult{Status: RematchRequested}, nil
		case errors.Is(err, store.ErrGuardFailed) && retry:
			// The other player asked at the same moment; re-evaluate once.
			cur, lerr := e.load(ctx, g.ID)
			if lerr != nil {
				return nil, lerr
			}
			return e.rematch(ctx, cur, seat, false)
		case errors.Is(err, store.ErrGuardFailed):
			return nil, ErrRematchConflict
		default:
			return nil, fmt.Errorf("record rematch request: %w", err)
		}
	}
	if *g.RematchRequestedBy == seat {
		return &RematchResult{Status: RematchRequested}, nil
	}
	return e.acceptRematch(ctx, g)
}

func (e *Engine) acceptRematch(ctx context.Context, g *domain.Game) (*RematchResult, error) {
	newP1, newP2 := g.PlayerID(board.PlayerTwo), g.Player1ID

	active, err := e.store.ActiveGamesFor(ctx, newP1, newP2)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		// A concurrent accept may already have produced the rematch.
		cur, lerr := e.load(ctx, g.ID)
		if lerr == nil && cur.RematchGameID != nil {
			return e.linkedRematch(ctx, cur)
		}
		// The other accept created the game but has not linked it yet.
		pending := pendingRematches(g, active, newP1, newP2)
		switch len(pending) {
		case 0:
			return nil, withGame(ErrHasActiveGame, active[0].ID)
		case 1:
			return &RematchResult{Status: RematchAccepted, Game: &pending[0]}, nil
		default:
			return nil, ErrRematchConflict
		}
	}

	// The new player one always opens a rematch.
	ng, err := e.newActiveGame(ctx, newP1, newP2, board.PlayerOne)
	if err != nil {
		return nil, err
	}
	err = e.store.LinkRematch(ctx, g.ID, ng.ID, e.now())
	if errors.Is(err, store.ErrGuardFailed) {
		if derr := e.store.DeleteGame(ctx, ng.ID); derr != nil {
			obslog.L().Error("rematch_orphan_delete_failed", zap.String("game_id", ng.ID), zap.Error(derr))
		}
		obslog.L().Info("rematch_link_lost", zap.String("game_id", g.ID), zap.String("orphan_id", ng.ID))
		cur, lerr := e.load(ctx, g.ID)
		if lerr != nil {
			return nil, lerr
		}
		if cur.RematchGameID == nil {
			return nil, ErrRematchConflict
		}
		return e.linkedRematch(ctx, cur)
	}
	if err != nil {
		return nil, fmt.Errorf("link rematch: %w", err)
	}
	obslog.L().Info("rematch_accept",
		zap.String("game_id", g.ID),
		zap.String("rematch_id", ng.ID),
		zap.String("player1_id", newP1),
	)
	return &RematchResult{Status: RematchAccepted, Game: ng}, nil
}

func (e *Engine) linkedRematch(ctx context.Context, g *domain.Game) (*RematchResult, error) {
	rg, err := e.load(ctx, *g.RematchGameID)
	if err != nil {
		return nil, err
	}
	return &RematchResult{Status: RematchAccepted, Game: rg}, nil
}

// pendingRematches picks the open games that can only be g's rematch: the
// seat-swapped pairing, active, created no earlier than g finished.
func pendingRematches(g *domain.Game, open []domain.Game, p1, p2 string) []domain.Game {
	var out []domain.Game
	for _, c := range open {
		if c.Status != domain.StatusActive || c.Player1ID != p1 || c.Player2ID == nil || *c.Player2ID != p2 {
			continue
		}
		if g.CompletedAt != nil && c.CreatedAt.Before(*g.CompletedAt) {
			continue
		}
		out = append(out, c)
	}
	return out
}
