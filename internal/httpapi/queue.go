package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/akshatjain2002sept/connect-4-multi/internal/matchmaking"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

func queueResponse(r *matchmaking.Result) c4dto.QueueResponse {
	out := c4dto.QueueResponse{Status: string(r.Status), GameID: r.GameID}
	if !r.QueuedAt.IsZero() {
		at := r.QueuedAt
		out.QueuedAt = &at
	}
	return out
}

func (s *Server) queueJoin(c *fiber.Ctx) error {
	u := currentUser(c)
	res, err := s.queue.Join(c.UserContext(), matchmaking.Player{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		Rating:      u.Rating,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(queueResponse(res))
}

func (s *Server) queueStatus(c *fiber.Ctx) error {
	res, err := s.queue.Status(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(queueResponse(res))
}

func (s *Server) queueLeave(c *fiber.Ctx) error {
	return c.JSON(queueResponse(s.queue.Leave(currentUser(c).ID)))
}
