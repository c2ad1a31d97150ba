// Package httpapi exposes the game, queue and profile operations as a JSON
// API under /api. Every /api route requires a bearer token.
package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/auth"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/game"
	"github.com/akshatjain2002sept/connect-4-multi/internal/leaderboard"
	"github.com/akshatjain2002sept/connect-4-multi/internal/matchmaking"
	"github.com/akshatjain2002sept/connect-4-multi/internal/msgcat"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/internal/render"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

const (
	maxLeaderboard = 100
	healthTimeout  = 2 * time.Second
	localUser      = "user"
)

// Users is the slice of the store the HTTP layer reads directly.
type Users interface {
	EnsureUser(ctx context.Context, u domain.User) (*domain.User, error)
	UsersByID(ctx context.Context, ids ...string) (map[string]*domain.User, error)
	TopUsers(ctx context.Context, limit int) ([]domain.User, error)
	Ping(ctx context.Context) error
}

// Ranking is the optional leaderboard cache.
type Ranking interface {
	Top(ctx context.Context, n int) ([]leaderboard.Entry, error)
	Rank(ctx context.Context, userID string) (*leaderboard.Entry, error)
	Ping(ctx context.Context) error
}

type Options struct {
	Engine   *game.Engine
	Queue    *matchmaking.Queue
	Store    Users
	Ranking  Ranking
	Verifier *auth.Verifier
	Messages *msgcat.Catalog
	Renderer render.Renderer

	AllowedOrigins  []string
	LeaderboardSize int
}

type Server struct {
	app       *fiber.App
	engine    *game.Engine
	queue     *matchmaking.Queue
	store     Users
	ranking   Ranking
	verifier  *auth.Verifier
	msgs      *msgcat.Catalog
	renderer  render.Renderer
	boardSize int
}

func New(o Options) *Server {
	s := &Server{
		engine:    o.Engine,
		queue:     o.Queue,
		store:     o.Store,
		ranking:   o.Ranking,
		verifier:  o.Verifier,
		msgs:      o.Messages,
		renderer:  o.Renderer,
		boardSize: o.LeaderboardSize,
	}
	if s.msgs == nil {
		s.msgs = msgcat.MustDefault()
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer()
	}
	if s.boardSize <= 0 || s.boardSize > maxLeaderboard {
		s.boardSize = 50
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "connect4d",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleFiberError,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	s.app.Use(fiberrecover.New())
	s.app.Use(requestLogger())
	if len(o.AllowedOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(o.AllowedOrigins, ","),
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			MaxAge:       86400,
		}))
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)

	api := s.app.Group("/api", s.authenticate)

	api.Post("/games", s.createGame)
	api.Post("/games/join", s.joinGame)
	api.Get("/games/current", s.currentGame)
	api.Get("/games/:publicId/board.png", s.boardPNG)
	api.Get("/games/:publicId", s.getGame)
	api.Post("/games/:id/moves", s.submitMove)
	api.Post("/games/:id/claim-abandoned", s.claimAbandoned)
	api.Post("/games/:id/resign", s.resign)
	api.Post("/games/:id/cancel", s.cancel)
	api.Post("/games/:id/rematch", s.rematch)

	api.Post("/queue/join", s.queueJoin)
	api.Get("/queue/status", s.queueStatus)
	api.Post("/queue/leave", s.queueLeave)

	api.Get("/me", s.me)
	api.Get("/leaderboard", s.leaderboard)
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

// authenticate verifies the bearer token and makes sure the caller has a
// user row before any handler runs.
func (s *Server) authenticate(c *fiber.Ctx) error {
	p, err := s.verifier.Verify(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		obslog.L().Debug("auth_rejected", zap.String("path", c.Path()), zap.Error(err))
		return s.fail(c, auth.ErrUnauthorized)
	}
	u := domain.User{ID: p.UserID, DisplayName: p.DisplayName(), IsGuest: p.IsGuest}
	if p.Email != "" {
		email := p.Email
		u.Email = &email
	}
	stored, err := s.store.EnsureUser(c.UserContext(), u)
	if err != nil {
		return s.fail(c, err)
	}
	c.Locals(localUser, stored)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals(localUser).(*domain.User)
	return u
}

func (s *Server) handleFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return s.fail(c, err)
	}
	code := codeInvalidRequest
	switch {
	case fe.Code == fiber.StatusNotFound:
		code = string(game.CodeNotFound)
	case fe.Code >= fiber.StatusInternalServerError:
		code = codeInternal
	}
	return c.Status(fe.Code).JSON(c4dto.ErrorEnvelope{Error: s.simpleError(code)})
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		obslog.L().Debug("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	healthy := true
	if err := s.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if s.ranking != nil {
		checks["redis"] = "ok"
		if err := s.ranking.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(c4dto.Health{Status: "degraded", Checks: checks})
	}
	return c.JSON(c4dto.Health{Status: "ok", Checks: checks})
}
