package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/internal/rating"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store"
)

type MoveStatus string

const (
	MoveApplied MoveStatus = "move_applied"
	GameEnded   MoveStatus = "game_ended"
)

// MoveResult is the outcome of an accepted move.
type MoveResult struct {
	Status MoveStatus
	Reason *domain.EndReason
	Game   *domain.Game
	Move   domain.Move
}

// SubmitMove drops the acting player's disc into column. Checks run in a
// fixed order and each failure has its own code; the abandonment check comes
// before the turn check so a player facing a silent opponent is sent to the
// claim path instead of waiting on a turn that will never come.
func (e *Engine) SubmitMove(ctx context.Context, gameID, userID string, column int) (*MoveResult, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	if !g.Started() {
		return nil, ErrNotStarted
	}
	seat := g.PlayerOf(userID)
	if seat == 0 {
		return nil, ErrNotInGame
	}
	now := e.now()
	if OpponentAbandoned(g, userID, now, e.abandonAfter) {
		return nil, ErrUseClaimEndpoint
	}
	if g.Turn != seat {
		return nil, ErrNotYourTurn
	}
	if column < 0 || column >= board.Columns {
		return nil, ErrInvalidColumn
	}
	if err := g.Board.Validate(); err != nil {
		return nil, &InvariantError{GameID: g.ID, Detail: err.Error()}
	}
	next, row, ok := g.Board.ApplyMove(column, seat)
	if !ok {
		return nil, ErrColumnFull
	}

	mv := domain.Move{
		Seq:    len(g.Moves) + 1,
		Column: column,
		Row:    row,
		Player: seat,
		UserID: userID,
		At:     now,
	}
	moves := g.Moves.Append(mv)
	guard := store.Guard{Status: domain.StatusActive, Turn: seat, Board: g.Board, Unrated: true}

	var reason domain.EndReason
	var winner board.Player
	switch {
	case next.CheckWin(row, column, seat):
		reason, winner = domain.EndConnect4, seat
	case next.IsFull():
		reason = domain.EndBoardFull
	default:
		err := e.store.CommitMove(ctx, g.ID, guard, store.MoveCommit{
			Board:  next,
			Moves:  moves,
			Turn:   seat.Other(),
			Player: seat,
			At:     now,
		})
		if errors.Is(err, store.ErrGuardFailed) {
			obslog.L().Info("game_move_conflict", zap.String("game_id", g.ID), zap.String("user_id", userID))
			return nil, ErrMoveConflict
		}
		if err != nil {
			return nil, fmt.Errorf("commit move: %w", err)
		}
		g.Board, g.Moves, g.Turn, g.UpdatedAt = next, moves, seat.Other(), now
		setLastSeen(g, seat, now)
		obslog.L().Info("game_move",
			zap.String("game_id", g.ID),
			zap.String("user_id", userID),
			zap.Int("column", column),
			zap.Int("row", row),
			zap.Int("seq", mv.Seq),
		)
		return &MoveResult{Status: MoveApplied, Game: g, Move: mv}, nil
	}

	done, err := e.finalize(ctx, g, guard, ending{
		status: domain.StatusCompleted,
		reason: reason,
		winner: winner,
		actor:  seat,
		board:  next,
		moves:  moves,
		at:     now,
	})
	if errors.Is(err, store.ErrGuardFailed) {
		obslog.L().Info("game_move_conflict", zap.String("game_id", g.ID), zap.String("user_id", userID))
		return nil, ErrMoveConflict
	}
	if err != nil {
		return nil, err
	}
	return &MoveResult{Status: GameEnded, Reason: &reason, Game: done, Move: mv}, nil
}

// ClaimAbandoned awards the game to userID when the opponent has gone
// silent. Claiming a game that already has a result returns that result.
func (e *Engine) ClaimAbandoned(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	seat := g.PlayerOf(userID)
	if seat != 0 && g.Status.Terminal() && g.Finalized() {
		return g, nil
	}
	if g.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	if !g.Started() {
		return nil, ErrNotStarted
	}
	if seat == 0 {
		return nil, ErrNotInGame
	}
	now := e.now()
	if !OpponentAbandoned(g, userID, now, e.abandonAfter) {
		return nil, ErrOpponentNotAbandoned
	}
	done, err := e.finalize(ctx, g, store.Guard{Status: domain.StatusActive, Unrated: true}, ending{
		status: domain.StatusAbandoned,
		reason: domain.EndAbandoned,
		winner: seat,
		actor:  seat,
		at:     now,
	})
	if errors.Is(err, store.ErrGuardFailed) {
		return e.load(ctx, g.ID)
	}
	return done, err
}

// Resign ends the game as a loss for userID. If another request finished the
// game first, the finished record is returned.
func (e *Engine) Resign(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	if !g.Started() {
		return nil, ErrNotStarted
	}
	seat := g.PlayerOf(userID)
	if seat == 0 {
		return nil, ErrNotInGame
	}
	done, err := e.finalize(ctx, g, store.Guard{Status: domain.StatusActive, Unrated: true}, ending{
		status: domain.StatusCompleted,
		reason: domain.EndResigned,
		winner: seat.Other(),
		actor:  seat,
		at:     e.now(),
	})
	if errors.Is(err, store.ErrGuardFailed) {
		return e.load(ctx, g.ID)
	}
	return done, err
}

// ending describes a terminal transition. winner 0 is a draw.
type ending struct {
	status domain.Status
	reason domain.EndReason
	winner board.Player
	actor  board.Player
	board  board.Board
	moves  domain.MoveLog
	at     time.Time
}

// finalize computes rating deltas from the join-time snapshots and commits
// result and user increments together. It returns store.ErrGuardFailed
// untouched so callers can choose between conflict and idempotent replies.
func (e *Engine) finalize(ctx context.Context, g *domain.Game, guard store.Guard, end ending) (*domain.Game, error) {
	before1, before2 := g.Player1RatingBefore, g.Player2RatingBefore
	if before1 == nil || before2 == nil {
		obslog.L().DPanic("rating_snapshot_missing",
			zap.String("game_id", g.ID),
			zap.Bool("player1_present", before1 != nil),
			zap.Bool("player2_present", before2 != nil),
		)
		return nil, &InvariantError{GameID: g.ID, Detail: "rating snapshot missing at finalization"}
	}
	p1, p2 := g.Player1ID, g.PlayerID(board.PlayerTwo)

	var d1, d2 int
	var outcome domain.Outcome
	var winnerID *string
	var incs []domain.UserIncrement
	switch end.winner {
	case board.PlayerOne:
		d1, d2 = rating.Decisive(*before1, *before2)
		outcome, winnerID = domain.OutcomeP1Win, &p1
		incs = []domain.UserIncrement{domain.WinIncrement(p1, d1), domain.LossIncrement(p2, d2)}
	case board.PlayerTwo:
		d2, d1 = rating.Decisive(*before2, *before1)
		outcome, winnerID = domain.OutcomeP2Win, &p2
		incs = []domain.UserIncrement{domain.LossIncrement(p1, d1), domain.WinIncrement(p2, d2)}
	default:
		d1, d2 = rating.Draw(*before1, *before2)
		outcome = domain.OutcomeDraw
		incs = []domain.UserIncrement{domain.DrawIncrement(p1, d1), domain.DrawIncrement(p2, d2)}
	}

	err := e.store.Finalize(ctx, g.ID, guard, store.Finalization{
		Status:     end.status,
		Outcome:    outcome,
		EndReason:  end.reason,
		WinnerID:   winnerID,
		Delta1:     d1,
		Delta2:     d2,
		Board:      end.board,
		Moves:      end.moves,
		Player:     end.actor,
		At:         end.at,
		Increments: incs,
	})
	if err != nil {
		if errors.Is(err, store.ErrGuardFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("finalize game: %w", err)
	}

	if end.board != "" {
		g.Board, g.Moves = end.board, end.moves
	}
	at := end.at
	reason := end.reason
	g.Status, g.Outcome, g.EndReason, g.WinnerID = end.status, &outcome, &reason, winnerID
	g.Player1RatingDelta, g.Player2RatingDelta = &d1, &d2
	g.RatedAt, g.CompletedAt, g.UpdatedAt = &at, &at, at
	setLastSeen(g, end.actor, at)

	obslog.L().Info("game_finalize",
		zap.String("game_id", g.ID),
		zap.String("status", string(end.status)),
		zap.String("reason", string(end.reason)),
		zap.String("outcome", string(outcome)),
		zap.Int("player1_delta", d1),
		zap.Int("player2_delta", d2),
	)
	if e.sink != nil {
		e.sink.GameFinalized(ctx, g)
	}
	return g, nil
}

func setLastSeen(g *domain.Game, p board.Player, at time.Time) {
	switch p {
	case board.PlayerOne:
		g.Player1LastSeenAt = &at
	case board.PlayerTwo:
		g.Player2LastSeenAt = &at
	}
}
