package game

import "fmt"

// Kind groups error codes by how a client should react.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindPrecondition
	KindAuthorization
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// Code is the stable machine-readable identifier clients switch on.
type Code string

const (
	CodeNotFound              Code = "not_found"
	CodeAlreadyStarted        Code = "already_started"
	CodeCannotJoinOwnGame     Code = "cannot_join_own_game"
	CodeInvalidCodeFormat     Code = "invalid_code_format"
	CodeNotActive             Code = "not_active"
	CodeNotStarted            Code = "not_started"
	CodeNotInGame             Code = "not_in_game"
	CodeUseClaimEndpoint      Code = "use_claim_endpoint"
	CodeNotYourTurn           Code = "not_your_turn"
	CodeInvalidColumn         Code = "invalid_column"
	CodeColumnFull            Code = "column_full"
	CodeMoveConflict          Code = "move_conflict"
	CodeOpponentNotAbandoned  Code = "opponent_not_abandoned"
	CodeNotCreator            Code = "not_creator"
	CodeOpponentAlreadyJoined Code = "opponent_already_joined"
	CodeNotFinished           Code = "not_finished"
	CodeHasActiveGame         Code = "has_active_game"
	CodeRematchConflict       Code = "rematch_conflict"
)

// Error is an ordinary, user-correctable failure.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	// GameID is set when the error refers to another game, as with
	// has_active_game.
	GameID string
}

func (e *Error) Error() string {
	if e.GameID != "" {
		return fmt.Sprintf("%s (game %s)", e.Message, e.GameID)
	}
	return e.Message
}

// Is matches on code so wrapped copies still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable reports whether repeating the same action after a refetch may
// succeed.
func (e *Error) Retryable() bool {
	return e.Code == CodeMoveConflict || e.Code == CodeRematchConflict
}

func newErr(code Code, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

func withGame(e *Error, gameID string) *Error {
	c := *e
	c.GameID = gameID
	return &c
}

var (
	ErrNotFound = newErr(CodeNotFound, KindNotFound, "game not found")

	ErrAlreadyStarted        = newErr(CodeAlreadyStarted, KindPrecondition, "game already started")
	ErrNotActive             = newErr(CodeNotActive, KindPrecondition, "game is not active")
	ErrNotStarted            = newErr(CodeNotStarted, KindPrecondition, "game has not started")
	ErrUseClaimEndpoint      = newErr(CodeUseClaimEndpoint, KindPrecondition, "opponent has abandoned; claim the win instead")
	ErrOpponentNotAbandoned  = newErr(CodeOpponentNotAbandoned, KindPrecondition, "opponent is still connected")
	ErrOpponentAlreadyJoined = newErr(CodeOpponentAlreadyJoined, KindPrecondition, "an opponent already joined")
	ErrNotFinished           = newErr(CodeNotFinished, KindPrecondition, "game is not finished")
	ErrHasActiveGame         = newErr(CodeHasActiveGame, KindPrecondition, "user already has an active game")

	ErrCannotJoinOwnGame = newErr(CodeCannotJoinOwnGame, KindAuthorization, "cannot join your own game")
	ErrNotInGame         = newErr(CodeNotInGame, KindAuthorization, "not a player in this game")
	ErrNotYourTurn       = newErr(CodeNotYourTurn, KindAuthorization, "not your turn")
	ErrNotCreator        = newErr(CodeNotCreator, KindAuthorization, "only the creator can cancel")

	ErrInvalidCodeFormat = newErr(CodeInvalidCodeFormat, KindValidation, "join code must be 6 letters or digits")
	ErrInvalidColumn     = newErr(CodeInvalidColumn, KindValidation, "column out of range")
	ErrColumnFull        = newErr(CodeColumnFull, KindValidation, "column is full")

	ErrMoveConflict    = newErr(CodeMoveConflict, KindConflict, "game changed; refresh and retry")
	ErrRematchConflict = newErr(CodeRematchConflict, KindConflict, "rematch state changed; refresh and retry")
)

// InvariantError marks a state that correct code can never produce. It is
// never shown to users as an ordinary error.
type InvariantError struct {
	GameID string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on game %s: %s", e.GameID, e.Detail)
}
