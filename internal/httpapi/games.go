package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/akshatjain2002sept/connect-4-multi/internal/render"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

func (s *Server) createGame(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	g, err := s.engine.Create(ctx, u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s.presentGame(ctx, g, u.ID, false))
}

func (s *Server) joinGame(c *fiber.Ctx) error {
	var req c4dto.JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, errInvalidRequest)
	}
	ctx, u := c.UserContext(), currentUser(c)
	g, err := s.engine.JoinByCode(ctx, req.Code, u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.presentGame(ctx, g, u.ID, false))
}

// currentGame lets a client resume its open game after a reload.
func (s *Server) currentGame(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	g, err := s.engine.ActiveGame(ctx, u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	if g == nil {
		return c.JSON(c4dto.GameEnvelope{})
	}
	v, err := s.engine.GetByID(ctx, g.ID, u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	dto := s.presentGame(ctx, v.Game, u.ID, v.OpponentAbandoned)
	return c.JSON(c4dto.GameEnvelope{Game: &dto})
}

func (s *Server) getGame(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	v, err := s.engine.Get(ctx, c.Params("publicId"), u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.presentGame(ctx, v.Game, u.ID, v.OpponentAbandoned))
}

func (s *Server) boardPNG(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	v, err := s.engine.Get(ctx, c.Params("publicId"), u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	img, err := s.renderer.RenderPNG(ctx, v.Game.Board, render.OptionsFor(v.Game))
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("png")
	return c.Send(img)
}

func (s *Server) submitMove(c *fiber.Ctx) error {
	var req c4dto.MoveRequest
	if err := c.BodyParser(&req); err != nil || req.Column == nil {
		return s.fail(c, errInvalidRequest)
	}
	ctx, u := c.UserContext(), currentUser(c)
	res, err := s.engine.SubmitMove(ctx, c.Params("id"), u.ID, *req.Column)
	if err != nil {
		return s.fail(c, err)
	}
	out := c4dto.MoveResponse{
		Status: string(res.Status),
		Game:   s.presentGame(ctx, res.Game, u.ID, false),
		Move:   presentMove(res.Move),
	}
	if res.Reason != nil {
		out.Reason = string(*res.Reason)
	}
	return c.JSON(out)
}

func (s *Server) claimAbandoned(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	g, err := s.engine.ClaimAbandoned(ctx, c.Params("id"), u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	dto := s.presentGame(ctx, g, u.ID, false)
	return c.JSON(c4dto.GameEnvelope{Game: &dto})
}

func (s *Server) resign(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	g, err := s.engine.Resign(ctx, c.Params("id"), u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	dto := s.presentGame(ctx, g, u.ID, false)
	return c.JSON(c4dto.GameEnvelope{Game: &dto})
}

func (s *Server) cancel(c *fiber.Ctx) error {
	if err := s.engine.Cancel(c.UserContext(), c.Params("id"), currentUser(c).ID); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(c4dto.SuccessResponse{Success: true})
}

func (s *Server) rematch(c *fiber.Ctx) error {
	ctx, u := c.UserContext(), currentUser(c)
	res, err := s.engine.RequestRematch(ctx, c.Params("id"), u.ID)
	if err != nil {
		return s.fail(c, err)
	}
	out := c4dto.RematchResponse{Status: string(res.Status)}
	if res.Game != nil {
		dto := s.presentGame(ctx, res.Game, u.ID, false)
		out.NewGameID, out.NewPublicID, out.Game = res.Game.ID, res.Game.PublicID, &dto
	}
	return c.JSON(out)
}
