package apiclient_test

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshatjain2002sept/connect-4-multi/internal/apiclient"
	"github.com/akshatjain2002sept/connect-4-multi/internal/auth"
	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/game"
	"github.com/akshatjain2002sept/connect-4-multi/internal/httpapi"
	"github.com/akshatjain2002sept/connect-4-multi/internal/matchmaking"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store/storetest"
	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

// serve runs app on a loopback port and returns its base URL.
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func newServer(t *testing.T) (string, *auth.Verifier) {
	t.Helper()
	st := storetest.New(t)
	eng := game.NewEngine(st, game.WithFirstTurn(func() board.Player { return board.PlayerOne }))
	v, err := auth.NewVerifier("client-test")
	require.NoError(t, err)
	srv := httpapi.New(httpapi.Options{
		Engine:   eng,
		Queue:    matchmaking.NewQueue(eng),
		Store:    st,
		Verifier: v,
	})
	return serve(t, srv.App()), v
}

func clientFor(t *testing.T, base string, v *auth.Verifier, id, name string) *apiclient.Client {
	t.Helper()
	tok, err := v.Issue(auth.Principal{UserID: id, Name: name}, time.Hour)
	require.NoError(t, err)
	return apiclient.NewClient(base, apiclient.WithToken(tok), apiclient.WithTimeout(5*time.Second))
}

func TestClient_GameRoundTrip(t *testing.T) {
	base, v := newServer(t)
	ctx := context.Background()
	alice := clientFor(t, base, v, "alice", "Alice")
	bob := clientFor(t, base, v, "bob", "Bob")

	h, err := alice.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	g, err := alice.CreateGame(ctx)
	require.NoError(t, err)
	require.NotNil(t, g.JoinCode)
	assert.Equal(t, "WAITING", g.Status)

	joined, err := bob.JoinGame(ctx, *g.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", joined.Status)

	_, err = bob.Move(ctx, g.ID, 0)
	require.Error(t, err)
	assert.Equal(t, "not_your_turn", apiclient.Code(err))
	var ae *apiclient.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.Status)

	mv, err := alice.Move(ctx, g.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "move_applied", mv.Status)
	assert.Equal(t, 2, mv.Game.Turn)

	cur, err := bob.CurrentGame(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, g.ID, cur.ID)

	img, err := bob.BoardPNG(ctx, g.PublicID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG\r\n\x1a\n")))

	done, err := bob.Resign(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", done.Status)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, "alice", *done.WinnerID)

	me, err := alice.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, me.Wins)

	top, err := bob.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].UserID)

	rm, err := alice.Rematch(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "requested", rm.Status)

	none, err := alice.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestClient_Queue(t *testing.T) {
	base, v := newServer(t)
	ctx := context.Background()
	alice := clientFor(t, base, v, "alice", "Alice")
	bob := clientFor(t, base, v, "bob", "Bob")

	q, err := alice.QueueJoin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued", q.Status)

	q, err = bob.QueueJoin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "matched", q.Status)

	q, err = alice.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "matched", q.Status)

	q, err = bob.QueueLeave(ctx)
	require.NoError(t, err)
	assert.Equal(t, "not_queued", q.Status)
}

func TestClient_Unauthorized(t *testing.T) {
	base, _ := newServer(t)
	_, err := apiclient.NewClient(base).Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, "unauthorized", apiclient.Code(err))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/api/me", func(c *fiber.Ctx) error {
		if calls.Add(1) < 3 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(c4dto.ErrorEnvelope{Error: c4dto.DomainError{Code: "internal"}})
		}
		return c.JSON(c4dto.User{ID: "alice", Rating: 1200})
	})
	app.Post("/api/games", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.SendStatus(fiber.StatusBadGateway)
	})
	base := serve(t, app)
	c := apiclient.NewClient(base, apiclient.WithRetry(3))

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.EqualValues(t, 3, calls.Load())

	// Writes are sent once.
	calls.Store(0)
	_, err = c.CreateGame(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}
