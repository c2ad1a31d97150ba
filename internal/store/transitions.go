package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
)

// Guard is the expected prior state of a game row. Zero fields are not
// checked. An update guarded this way lands only if every set field still
// matches; otherwise it reports ErrGuardFailed.
type Guard struct {
	Status   domain.Status
	Statuses []domain.Status
	Turn     board.Player
	Board    board.Board
	// Unrated requires that the result has not been written yet.
	Unrated            bool
	Player1ID          string
	Player2Absent      bool
	RematchUnrequested bool
	RematchUnlinked    bool
}

func (g Guard) apply(q *gorm.DB) *gorm.DB {
	if g.Status != "" {
		q = q.Where("status = ?", g.Status)
	}
	if len(g.Statuses) > 0 {
		q = q.Where("status IN ?", g.Statuses)
	}
	if g.Turn != 0 {
		q = q.Where("turn = ?", g.Turn)
	}
	if g.Board != "" {
		q = q.Where("board = ?", g.Board)
	}
	if g.Unrated {
		q = q.Where("rated_at IS NULL")
	}
	if g.Player1ID != "" {
		q = q.Where("player1_id = ?", g.Player1ID)
	}
	if g.Player2Absent {
		q = q.Where("player2_id IS NULL")
	}
	if g.RematchUnrequested {
		q = q.Where("rematch_requested_by IS NULL")
	}
	if g.RematchUnlinked {
		q = q.Where("rematch_game_id IS NULL")
	}
	return q
}

func guardedUpdate(tx *gorm.DB, id string, guard Guard, values map[string]any) error {
	res := guard.apply(tx.Model(&domain.Game{}).Where("id = ?", id)).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update game %s: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrGuardFailed
	}
	return nil
}

func lastSeenColumn(p board.Player) string {
	if p == board.PlayerOne {
		return "player1_last_seen_at"
	}
	return "player2_last_seen_at"
}

// StartGame seats player2ID in a WAITING game and makes it ACTIVE. Both
// players' current ratings are copied into the before-snapshots in the same
// transaction as the status flip.
func (s *Store) StartGame(ctx context.Context, id, player2ID string, first board.Player, at time.Time) (*domain.Game, error) {
	var out *domain.Game
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := firstGame(tx, "id = ?", id)
		if err != nil {
			return err
		}
		users, err := usersByID(tx, []string{g.Player1ID, player2ID})
		if err != nil {
			return err
		}
		p1, p2 := users[g.Player1ID], users[player2ID]
		if p1 == nil || p2 == nil {
			return fmt.Errorf("start game: player: %w", ErrNotFound)
		}
		err = guardedUpdate(tx, id, Guard{Status: domain.StatusWaiting, Player2Absent: true}, map[string]any{
			"player2_id":            player2ID,
			"status":                domain.StatusActive,
			"turn":                  first,
			"player1_rating_before": p1.Rating,
			"player2_rating_before": p2.Rating,
			"player1_last_seen_at":  at,
			"player2_last_seen_at":  at,
			"updated_at":            at,
		})
		if err != nil {
			return err
		}
		out, err = firstGame(tx, "id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelGame abandons a WAITING game on behalf of its creator while no
// second player is seated.
func (s *Store) CancelGame(ctx context.Context, id, creatorID string, at time.Time) error {
	return guardedUpdate(s.db.WithContext(ctx), id,
		Guard{Status: domain.StatusWaiting, Player1ID: creatorID, Player2Absent: true},
		map[string]any{
			"status":       domain.StatusAbandoned,
			"completed_at": at,
			"updated_at":   at,
		})
}

// TouchPlayer stamps the liveness column for seat p while the game is open.
// A closed game is left untouched and no error is reported.
func (s *Store) TouchPlayer(ctx context.Context, id string, p board.Player, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&domain.Game{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		UpdateColumn(lastSeenColumn(p), at).Error
	if err != nil {
		return fmt.Errorf("touch player: %w", err)
	}
	return nil
}

// MoveCommit is a non-terminal move.
type MoveCommit struct {
	Board  board.Board
	Moves  domain.MoveLog
	Turn   board.Player
	Player board.Player
	At     time.Time
}

// CommitMove writes a non-terminal move under guard.
func (s *Store) CommitMove(ctx context.Context, id string, guard Guard, c MoveCommit) error {
	return guardedUpdate(s.db.WithContext(ctx), id, guard, map[string]any{
		"board":                  c.Board,
		"moves":                  c.Moves,
		"turn":                   c.Turn,
		lastSeenColumn(c.Player): c.At,
		"updated_at":             c.At,
	})
}

// Finalization is a terminal transition together with its rating effects.
type Finalization struct {
	Status    domain.Status
	Outcome   domain.Outcome
	EndReason domain.EndReason
	WinnerID  *string
	Delta1    int
	Delta2    int
	// Board and Moves are written only when Board is set (a terminal move).
	Board  board.Board
	Moves  domain.MoveLog
	Player board.Player
	At     time.Time

	Increments []domain.UserIncrement
}

// Finalize writes the result under guard and, only if the guard held, applies
// the user increments. Both happen in one transaction.
func (s *Store) Finalize(ctx context.Context, id string, guard Guard, f Finalization) error {
	values := map[string]any{
		"status":               f.Status,
		"outcome":              f.Outcome,
		"end_reason":           f.EndReason,
		"winner_id":            f.WinnerID,
		"player1_rating_delta": f.Delta1,
		"player2_rating_delta": f.Delta2,
		"rated_at":             f.At,
		"completed_at":         f.At,
		"updated_at":           f.At,
	}
	if f.Board != "" {
		values["board"] = f.Board
		values["moves"] = f.Moves
	}
	if f.Player.Valid() {
		values[lastSeenColumn(f.Player)] = f.At
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardedUpdate(tx, id, guard, values); err != nil {
			return err
		}
		for _, inc := range f.Increments {
			if err := applyIncrement(tx, inc); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordRematchRequest stores which seat asked for a rematch. It lands only
// on a finished game with no request and no linked rematch yet.
func (s *Store) RecordRematchRequest(ctx context.Context, id string, p board.Player, at time.Time) error {
	return guardedUpdate(s.db.WithContext(ctx), id,
		Guard{
			Statuses:           []domain.Status{domain.StatusCompleted, domain.StatusAbandoned},
			RematchUnrequested: true,
			RematchUnlinked:    true,
		},
		map[string]any{"rematch_requested_by": p, "updated_at": at})
}

// LinkRematch points a finished game at its rematch, at most once.
func (s *Store) LinkRematch(ctx context.Context, id, rematchID string, at time.Time) error {
	return guardedUpdate(s.db.WithContext(ctx), id,
		Guard{RematchUnlinked: true},
		map[string]any{"rematch_game_id": rematchID, "updated_at": at})
}

// ExpireWaitingGames abandons WAITING games whose creator has not been seen
// since cutoff.
func (s *Store) ExpireWaitingGames(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&domain.Game{}).
		Where("status = ? AND player2_id IS NULL AND player1_last_seen_at < ?", domain.StatusWaiting, cutoff).
		Updates(map[string]any{
			"status":       domain.StatusAbandoned,
			"completed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire waiting games: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeAbandonedLobbies deletes abandoned games that never got a second
// player and were last touched before cutoff.
func (s *Store) PurgeAbandonedLobbies(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND player2_id IS NULL AND updated_at < ?", domain.StatusAbandoned, cutoff).
		Delete(&domain.Game{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge abandoned lobbies: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// IsGuardFailed reports whether err is a lost conditional write.
func IsGuardFailed(err error) bool { return errors.Is(err, ErrGuardFailed) }
