package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/auth"
	"github.com/akshatjain2002sept/connect-4-multi/internal/game"
	"github.com/akshatjain2002sept/connect-4-multi/internal/matchmaking"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

const (
	codeUnauthorized   = "unauthorized"
	codeInvalidRequest = "invalid_request"
	codeInternal       = "internal"
)

var errInvalidRequest = errors.New("invalid request")

func statusForKind(k game.Kind) int {
	switch k {
	case game.KindNotFound:
		return fiber.StatusNotFound
	case game.KindPrecondition, game.KindConflict:
		return fiber.StatusConflict
	case game.KindAuthorization:
		return fiber.StatusForbidden
	case game.KindValidation:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// fail writes err as an error envelope. Unknown errors become an opaque 500.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var ge *game.Error
	var inv *game.InvariantError
	var body c4dto.DomainError
	status := fiber.StatusInternalServerError

	switch {
	case errors.As(err, &ge):
		status = statusForKind(ge.Kind)
		body = c4dto.DomainError{
			Code:      string(ge.Code),
			Message:   s.msgs.ErrorMessage(string(ge.Code), map[string]any{"GameID": ge.GameID}, ge.Message),
			Retryable: ge.Retryable(),
			GameID:    ge.GameID,
		}
	case errors.Is(err, auth.ErrUnauthorized):
		status = fiber.StatusUnauthorized
		body = s.simpleError(codeUnauthorized)
	case errors.Is(err, errInvalidRequest), errors.Is(err, matchmaking.ErrInvalidArgs):
		status = fiber.StatusBadRequest
		body = s.simpleError(codeInvalidRequest)
	case errors.As(err, &inv):
		obslog.L().Error("invariant_violation", zap.String("game_id", inv.GameID), zap.String("detail", inv.Detail))
		body = s.simpleError(codeInternal)
	default:
		obslog.L().Error("request_failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		body = s.simpleError(codeInternal)
	}
	return c.Status(status).JSON(c4dto.ErrorEnvelope{Error: body})
}

func (s *Server) simpleError(code string) c4dto.DomainError {
	return c4dto.DomainError{Code: code, Message: s.msgs.ErrorMessage(code, nil, code)}
}
