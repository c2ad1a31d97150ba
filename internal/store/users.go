package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/rating"
)

// EnsureUser inserts u when no row with its id exists and returns the stored
// row either way.
func (s *Store) EnsureUser(ctx context.Context, u domain.User) (*domain.User, error) {
	if u.ID == "" {
		return nil, fmt.Errorf("ensure user: empty id")
	}
	if u.Rating == 0 {
		u.Rating = rating.Default
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&u).Error
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.UserByID(ctx, u.ID)
}

func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UsersByID loads several users at once, keyed by id. Missing ids are absent
// from the map.
func (s *Store) UsersByID(ctx context.Context, ids ...string) (map[string]*domain.User, error) {
	return usersByID(s.db.WithContext(ctx), ids)
}

func usersByID(db *gorm.DB, ids []string) (map[string]*domain.User, error) {
	var users []domain.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	out := make(map[string]*domain.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// TopUsers returns users by rating, highest first. limit <= 0 returns all.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]domain.User, error) {
	q := s.db.WithContext(ctx).Order("rating DESC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var users []domain.User
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	return users, nil
}

// applyIncrement adds inc to the user's counters in place. The absolute
// values are never read.
func applyIncrement(tx *gorm.DB, inc domain.UserIncrement) error {
	res := tx.Model(&domain.User{}).Where("id = ?", inc.UserID).Updates(map[string]any{
		"rating": gorm.Expr("rating + ?", inc.Rating),
		"wins":   gorm.Expr("wins + ?", inc.Wins),
		"losses": gorm.Expr("losses + ?", inc.Losses),
		"draws":  gorm.Expr("draws + ?", inc.Draws),
	})
	if res.Error != nil {
		return fmt.Errorf("increment user %s: %w", inc.UserID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("increment user %s: %w", inc.UserID, ErrNotFound)
	}
	return nil
}
