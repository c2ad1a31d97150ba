package domain

import "time"

// User is a rated player. Rating and counters only change through
// UserIncrement applied as atomic column increments.
type User struct {
	ID          string  `gorm:"primaryKey;size:64"`
	DisplayName string  `gorm:"size:64;not null"`
	Email       *string `gorm:"size:255"`
	IsGuest     bool    `gorm:"not null;default:false"`
	Rating      int     `gorm:"index;not null"`
	Wins        int     `gorm:"not null;default:0"`
	Losses      int     `gorm:"not null;default:0"`
	Draws       int     `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GamesPlayed sums the result counters.
func (u *User) GamesPlayed() int { return u.Wins + u.Losses + u.Draws }

// UserIncrement is the per-user effect of one finalized game.
type UserIncrement struct {
	UserID string
	Rating int
	Wins   int
	Losses int
	Draws  int
}

// WinIncrement, LossIncrement and DrawIncrement build the three shapes a
// result can take.
func WinIncrement(userID string, delta int) UserIncrement {
	return UserIncrement{UserID: userID, Rating: delta, Wins: 1}
}

func LossIncrement(userID string, delta int) UserIncrement {
	return UserIncrement{UserID: userID, Rating: delta, Losses: 1}
}

func DrawIncrement(userID string, delta int) UserIncrement {
	return UserIncrement{UserID: userID, Rating: delta, Draws: 1}
}
