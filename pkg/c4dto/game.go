package c4dto

import "time"

// Player is one seat of a game.
type Player struct {
	UserID       string     `json:"userId"`
	DisplayName  string     `json:"displayName,omitempty"`
	RatingBefore *int       `json:"ratingBefore,omitempty"`
	RatingDelta  *int       `json:"ratingDelta,omitempty"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
}

type Move struct {
	Seq    int       `json:"seq"`
	Column int       `json:"column"`
	Row    int       `json:"row"`
	Player int       `json:"player"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// Game is a game as seen by one caller. Board is the 42-character encoding,
// row-major from the top row.
type Game struct {
	ID       string  `json:"id"`
	PublicID string  `json:"publicId"`
	JoinCode *string `json:"joinCode,omitempty"`

	Player1 Player  `json:"player1"`
	Player2 *Player `json:"player2,omitempty"`

	Status string `json:"status"`
	Board  string `json:"board"`
	Turn   int    `json:"turn"`
	Moves  []Move `json:"moves"`

	Outcome   *string `json:"outcome,omitempty"`
	EndReason *string `json:"endReason,omitempty"`
	WinnerID  *string `json:"winnerId,omitempty"`

	YourSeat          int  `json:"yourSeat,omitempty"`
	OpponentAbandoned bool `json:"opponentAbandoned"`

	RematchRequestedBy *int    `json:"rematchRequestedBy,omitempty"`
	RematchGameID      *string `json:"rematchGameId,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// GameEnvelope carries a single game; Game is null when there is none.
type GameEnvelope struct {
	Game *Game `json:"game"`
}

type MoveResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Game   Game   `json:"game"`
	Move   Move   `json:"move"`
}

type RematchResponse struct {
	Status      string `json:"status"`
	NewGameID   string `json:"newGameId,omitempty"`
	NewPublicID string `json:"newPublicId,omitempty"`
	Game        *Game  `json:"game,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
