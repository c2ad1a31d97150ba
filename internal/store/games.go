package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
)

var openStatuses = []domain.Status{domain.StatusWaiting, domain.StatusActive}

// CreateGame inserts g with a fresh internal id, public id and, when
// withCode is set, a join code. Unique-key collisions regenerate all three
// and retry up to five times.
func (s *Store) CreateGame(ctx context.Context, g *domain.Game, withCode bool) error {
	if g.Moves == nil {
		g.Moves = domain.MoveLog{}
	}
	for attempt := 1; attempt <= maxCollisionRetries; attempt++ {
		publicID, err := s.newPublicID()
		if err != nil {
			return fmt.Errorf("generate public id: %w", err)
		}
		g.ID = uuid.NewString()
		g.PublicID = publicID
		g.JoinCode = nil
		if withCode {
			code, err := s.newJoinCode()
			if err != nil {
				return fmt.Errorf("generate join code: %w", err)
			}
			g.JoinCode = &code
		}

		err = s.db.WithContext(ctx).Create(g).Error
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("create game: %w", err)
		}
		obslog.L().Warn("game_id_collision", zap.Int("attempt", attempt), zap.String("public_id", publicID))
	}
	return ErrIDSpaceExhausted
}

func (s *Store) GameByID(ctx context.Context, id string) (*domain.Game, error) {
	return firstGame(s.db.WithContext(ctx), "id = ?", id)
}

func (s *Store) GameByPublicID(ctx context.Context, publicID string) (*domain.Game, error) {
	return firstGame(s.db.WithContext(ctx), "public_id = ?", publicID)
}

func (s *Store) GameByJoinCode(ctx context.Context, code string) (*domain.Game, error) {
	return firstGame(s.db.WithContext(ctx), "join_code = ?", code)
}

func firstGame(db *gorm.DB, query string, args ...any) (*domain.Game, error) {
	var g domain.Game
	if err := db.Where(query, args...).First(&g).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// ActiveGameFor returns the most recent WAITING or ACTIVE game that userID
// sits in, or ErrNotFound.
func (s *Store) ActiveGameFor(ctx context.Context, userID string) (*domain.Game, error) {
	var g domain.Game
	err := s.db.WithContext(ctx).
		Where("status IN ?", openStatuses).
		Where(s.db.Where("player1_id = ?", userID).Or("player2_id = ?", userID)).
		Order("updated_at DESC").
		First(&g).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// ActiveGamesFor returns every WAITING or ACTIVE game involving any of
// userIDs.
func (s *Store) ActiveGamesFor(ctx context.Context, userIDs ...string) ([]domain.Game, error) {
	var games []domain.Game
	err := s.db.WithContext(ctx).
		Where("status IN ?", openStatuses).
		Where(s.db.Where("player1_id IN ?", userIDs).Or("player2_id IN ?", userIDs)).
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("active games: %w", err)
	}
	return games, nil
}

// DeleteGame removes a game outright. Used only for rematch games that lost
// the link race.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Game{})
	if res.Error != nil {
		return fmt.Errorf("delete game: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
