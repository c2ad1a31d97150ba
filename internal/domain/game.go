// Package domain defines the persisted entities: games, their move logs and users.
package domain

import (
	"time"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
)

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusAbandoned Status = "ABANDONED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusAbandoned }

// Open reports whether the game still occupies its players.
func (s Status) Open() bool { return s == StatusWaiting || s == StatusActive }

type Outcome string

const (
	OutcomeP1Win Outcome = "P1_WIN"
	OutcomeP2Win Outcome = "P2_WIN"
	OutcomeDraw  Outcome = "DRAW"
)

// OutcomeFor maps the winning seat to its outcome.
func OutcomeFor(winner board.Player) Outcome {
	if winner == board.PlayerOne {
		return OutcomeP1Win
	}
	return OutcomeP2Win
}

type EndReason string

const (
	EndConnect4  EndReason = "CONNECT4"
	EndBoardFull EndReason = "BOARD_FULL"
	EndAbandoned EndReason = "ABANDONED"
	EndResigned  EndReason = "RESIGNED"
)

// Game is one match. It is the only durable shared state in the service.
type Game struct {
	ID       string  `gorm:"primaryKey;size:36"`
	PublicID string  `gorm:"uniqueIndex;size:16;not null"`
	JoinCode *string `gorm:"uniqueIndex;size:6"`

	Player1ID string  `gorm:"index;size:64;not null"`
	Player2ID *string `gorm:"index;size:64"`

	Status Status       `gorm:"index;size:16;not null"`
	Board  board.Board  `gorm:"size:42;not null"`
	Turn   board.Player `gorm:"not null"`
	Moves  MoveLog

	Outcome   *Outcome   `gorm:"size:8"`
	EndReason *EndReason `gorm:"size:16"`
	WinnerID  *string    `gorm:"size:64"`

	Player1RatingBefore *int
	Player2RatingBefore *int
	Player1RatingDelta  *int
	Player2RatingDelta  *int
	RatedAt             *time.Time

	Player1LastSeenAt *time.Time
	Player2LastSeenAt *time.Time

	RematchRequestedBy *board.Player
	RematchGameID      *string `gorm:"uniqueIndex;size:36"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// PlayerOf returns the seat held by userID, or 0.
func (g *Game) PlayerOf(userID string) board.Player {
	switch {
	case userID == "":
		return 0
	case g.Player1ID == userID:
		return board.PlayerOne
	case g.Player2ID != nil && *g.Player2ID == userID:
		return board.PlayerTwo
	}
	return 0
}

// PlayerID returns the user seated at p.
func (g *Game) PlayerID(p board.Player) string {
	switch p {
	case board.PlayerOne:
		return g.Player1ID
	case board.PlayerTwo:
		if g.Player2ID != nil {
			return *g.Player2ID
		}
	}
	return ""
}

// Started reports whether a second player is seated.
func (g *Game) Started() bool { return g.Player2ID != nil && *g.Player2ID != "" }

// LastSeen returns the liveness stamp for seat p.
func (g *Game) LastSeen(p board.Player) *time.Time {
	if p == board.PlayerOne {
		return g.Player1LastSeenAt
	}
	return g.Player2LastSeenAt
}

// RatingBefore returns the snapshot for seat p.
func (g *Game) RatingBefore(p board.Player) *int {
	if p == board.PlayerOne {
		return g.Player1RatingBefore
	}
	return g.Player2RatingBefore
}

// Finalized reports whether result and rating deltas have been written.
func (g *Game) Finalized() bool { return g.RatedAt != nil }
