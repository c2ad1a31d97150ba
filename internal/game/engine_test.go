package game_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/game"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/internal/rating"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store/storetest"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	st    *store.Store
	clock *clockwork.FakeClock
	eng   *game.Engine
	sink  *recordingSink
}

type recordingSink struct {
	mu    sync.Mutex
	games []domain.Game
}

func (s *recordingSink) GameFinalized(_ context.Context, g *domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = append(s.games, *g)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

// newFixture seeds users u1..u4 at the default rating. The engine store can
// be wrapped to inject races.
func newFixture(t *testing.T, wrap func(*store.Store) game.Store) *fixture {
	t.Helper()
	st := storetest.New(t)
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		_, err := st.EnsureUser(context.Background(), domain.User{ID: id, DisplayName: id})
		require.NoError(t, err)
	}
	var es game.Store = st
	if wrap != nil {
		es = wrap(st)
	}
	clock := clockwork.NewFakeClockAt(t0)
	sink := &recordingSink{}
	eng := game.NewEngine(es,
		game.WithClock(clock),
		game.WithFirstTurn(func() board.Player { return board.PlayerOne }),
	)
	eng.AttachResultSink(sink)
	return &fixture{st: st, clock: clock, eng: eng, sink: sink}
}

// startGame has p1 create and p2 join; p1 moves first.
func (f *fixture) startGame(t *testing.T, p1, p2 string) *domain.Game {
	t.Helper()
	ctx := context.Background()
	g, err := f.eng.Create(ctx, p1)
	require.NoError(t, err)
	started, err := f.eng.JoinByCode(ctx, *g.JoinCode, p2)
	require.NoError(t, err)
	require.Equal(t, board.PlayerOne, started.Turn)
	return started
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.st.UserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestCreateAndJoin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.eng.Create(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, g.Status)
	assert.Equal(t, board.Empty, g.Board)
	require.NotNil(t, g.JoinCode)
	assert.True(t, store.ValidJoinCode(*g.JoinCode))
	require.NotNil(t, g.Player1LastSeenAt)

	_, err = f.eng.Create(ctx, "u1")
	assert.ErrorIs(t, err, game.ErrHasActiveGame)

	_, err = f.eng.JoinByCode(ctx, "abc", "u2")
	assert.ErrorIs(t, err, game.ErrInvalidCodeFormat)
	_, err = f.eng.JoinByCode(ctx, "ZZZZZZ", "u2")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.eng.JoinByCode(ctx, *g.JoinCode, "u1")
	assert.ErrorIs(t, err, game.ErrCannotJoinOwnGame)

	// Lower-case input is normalised.
	started, err := f.eng.JoinByCode(ctx, "  "+lower(*g.JoinCode)+" ", "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, started.Status)
	require.NotNil(t, started.Player1RatingBefore)
	require.NotNil(t, started.Player2RatingBefore)
	assert.Equal(t, rating.Default, *started.Player1RatingBefore)

	_, err = f.eng.JoinByCode(ctx, *g.JoinCode, "u3")
	assert.ErrorIs(t, err, game.ErrAlreadyStarted)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestScenario_CancelThenJoinFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g, err := f.eng.Create(ctx, "u1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.eng.Cancel(ctx, g.ID, "u2"), game.ErrNotCreator)
	require.NoError(t, f.eng.Cancel(ctx, g.ID, "u1"))
	require.NoError(t, f.eng.Cancel(ctx, g.ID, "u1"))

	got, err := f.st.GameByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)
	assert.False(t, got.Finalized())

	_, err = f.eng.JoinByCode(ctx, *g.JoinCode, "u2")
	assert.ErrorIs(t, err, game.ErrNotFound)

	// The creator is free again.
	_, err = f.eng.Create(ctx, "u1")
	assert.NoError(t, err)
}

func TestCancel_AfterJoin(t *testing.T) {
	f := newFixture(t, nil)
	g := f.startGame(t, "u1", "u2")
	assert.ErrorIs(t, f.eng.Cancel(context.Background(), g.ID, "u1"), game.ErrOpponentAlreadyJoined)
	assert.ErrorIs(t, f.eng.Cancel(context.Background(), "missing", "u1"), game.ErrNotFound)
}

func TestSubmitMove_PreconditionOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.SubmitMove(ctx, "missing", "u1", 0)
	assert.ErrorIs(t, err, game.ErrNotFound)

	waiting, err := f.eng.Create(ctx, "u3")
	require.NoError(t, err)
	_, err = f.eng.SubmitMove(ctx, waiting.ID, "u3", 0)
	assert.ErrorIs(t, err, game.ErrNotActive)

	g := f.startGame(t, "u1", "u2")
	_, err = f.eng.SubmitMove(ctx, g.ID, "u4", 0)
	assert.ErrorIs(t, err, game.ErrNotInGame)
	_, err = f.eng.SubmitMove(ctx, g.ID, "u2", 0)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
	for _, col := range []int{-1, board.Columns} {
		_, err = f.eng.SubmitMove(ctx, g.ID, "u1", col)
		assert.ErrorIs(t, err, game.ErrInvalidColumn)
	}

	// Fill column 0 without creating a win.
	for i := 0; i < board.Rows; i++ {
		who := "u1"
		if i%2 == 1 {
			who = "u2"
		}
		_, err := f.eng.SubmitMove(ctx, g.ID, who, 0)
		require.NoError(t, err)
	}
	_, err = f.eng.SubmitMove(ctx, g.ID, "u1", 0)
	assert.ErrorIs(t, err, game.ErrColumnFull)
}

func TestSubmitMove_AbandonmentCheckPrecedesTurn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")

	// u1 keeps polling, u2 goes quiet.
	f.clock.Advance(20 * time.Second)
	_, err := f.eng.Get(ctx, g.PublicID, "u1")
	require.NoError(t, err)
	f.clock.Advance(11 * time.Second)

	_, err = f.eng.SubmitMove(ctx, g.ID, "u1", 3)
	assert.ErrorIs(t, err, game.ErrUseClaimEndpoint)

	// u2's opponent (u1) was seen 11s ago, so u2 just gets the turn error.
	_, err = f.eng.SubmitMove(ctx, g.ID, "u2", 3)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
}

func TestScenario_VerticalWin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")

	wantRows := []int{5, 4, 3, 2}
	var last *game.MoveResult
	for i, want := range wantRows {
		res, err := f.eng.SubmitMove(ctx, g.ID, "u1", 3)
		require.NoError(t, err)
		assert.Equal(t, want, res.Move.Row)
		assert.Equal(t, 2*i+1, res.Move.Seq)
		if i < len(wantRows)-1 {
			assert.Equal(t, game.MoveApplied, res.Status)
			_, err = f.eng.SubmitMove(ctx, g.ID, "u2", 2)
			require.NoError(t, err)
		}
		last = res
	}

	require.Equal(t, game.GameEnded, last.Status)
	require.NotNil(t, last.Reason)
	assert.Equal(t, domain.EndConnect4, *last.Reason)

	got, err := f.st.GameByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, domain.OutcomeP1Win, *got.Outcome)
	assert.Equal(t, "u1", *got.WinnerID)
	assert.Len(t, got.Moves, 7)
	require.NotNil(t, got.Player1RatingBefore)
	require.NotNil(t, got.Player2RatingBefore)
	require.NotNil(t, got.Player1RatingDelta)
	require.NotNil(t, got.Player2RatingDelta)
	require.NotNil(t, got.RatedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 12, *got.Player1RatingDelta)
	assert.Equal(t, -12, *got.Player2RatingDelta)

	u1, u2 := f.user(t, "u1"), f.user(t, "u2")
	assert.Equal(t, rating.Default+12, u1.Rating)
	assert.Equal(t, 1, u1.Wins)
	assert.Equal(t, rating.Default-12, u2.Rating)
	assert.Equal(t, 1, u2.Losses)
	assert.Equal(t, 1, f.sink.count())

	_, err = f.eng.SubmitMove(ctx, g.ID, "u2", 0)
	assert.ErrorIs(t, err, game.ErrNotActive)
}

// drawPosition is one disc short of a full board with no run of four.
// Player two fills the last cell, column 1 on the top row.
const drawPosition = "101212112121211212121212121221212122121212"

func TestScenario_DrawSymmetricDeltas(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.st.EnsureUser(ctx, domain.User{ID: "strong", DisplayName: "strong", Rating: 1400})
	require.NoError(t, err)
	_, err = f.st.EnsureUser(ctx, domain.User{ID: "weak", DisplayName: "weak", Rating: 1000})
	require.NoError(t, err)
	g := f.startGame(t, "strong", "weak")

	require.NoError(t, f.st.DB().Exec("UPDATE games SET board = ?, turn = ? WHERE id = ?", drawPosition, 2, g.ID).Error)

	res, err := f.eng.SubmitMove(ctx, g.ID, "weak", 1)
	require.NoError(t, err)
	require.Equal(t, game.GameEnded, res.Status)
	assert.Equal(t, domain.EndBoardFull, *res.Reason)
	assert.Equal(t, 0, res.Move.Row)
	assert.True(t, res.Game.Board.IsFull())

	got, err := f.st.GameByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDraw, *got.Outcome)
	assert.Nil(t, got.WinnerID)
	d1, d2 := *got.Player1RatingDelta, *got.Player2RatingDelta
	assert.Equal(t, 0, d1+d2)
	assert.Less(t, d1, 0)

	strong, weak := f.user(t, "strong"), f.user(t, "weak")
	assert.Equal(t, 1400+d1, strong.Rating)
	assert.Equal(t, 1000+d2, weak.Rating)
	assert.Equal(t, 1, strong.Draws)
	assert.Equal(t, 1, weak.Draws)
}

func TestClaimAbandoned(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")

	_, err := f.eng.ClaimAbandoned(ctx, g.ID, "u1")
	assert.ErrorIs(t, err, game.ErrOpponentNotAbandoned)

	f.clock.Advance(game.AbandonThreshold + time.Second)
	_, err = f.eng.ClaimAbandoned(ctx, g.ID, "u3")
	assert.ErrorIs(t, err, game.ErrNotInGame)

	done, err := f.eng.ClaimAbandoned(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, done.Status)
	assert.Equal(t, domain.EndAbandoned, *done.EndReason)
	assert.Equal(t, "u1", *done.WinnerID)

	// Claiming again, from either side, returns the same result.
	again, err := f.eng.ClaimAbandoned(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, done.ID, again.ID)
	assert.Equal(t, domain.StatusAbandoned, again.Status)
	other, err := f.eng.ClaimAbandoned(ctx, g.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1", *other.WinnerID)

	assert.Equal(t, 1, f.user(t, "u1").Wins)
	assert.Equal(t, 1, f.user(t, "u2").Losses)
}

func TestJoin_StampsIdleCreator(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	lobby, err := f.eng.Create(ctx, "u1")
	require.NoError(t, err)

	// u1 never polls the lobby.
	f.clock.Advance(game.AbandonThreshold + time.Minute)
	started, err := f.eng.JoinByCode(ctx, *lobby.JoinCode, "u2")
	require.NoError(t, err)
	require.NotNil(t, started.Player1LastSeenAt)
	assert.True(t, started.Player1LastSeenAt.Equal(f.clock.Now().UTC()))

	v, err := f.eng.Get(ctx, started.PublicID, "u2")
	require.NoError(t, err)
	assert.False(t, v.OpponentAbandoned)

	_, err = f.eng.ClaimAbandoned(ctx, started.ID, "u2")
	assert.ErrorIs(t, err, game.ErrOpponentNotAbandoned)
}

func TestResign(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")

	_, err := f.eng.Resign(ctx, g.ID, "u3")
	assert.ErrorIs(t, err, game.ErrNotInGame)

	// Resigning out of turn is allowed.
	done, err := f.eng.Resign(ctx, g.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, domain.EndResigned, *done.EndReason)
	assert.Equal(t, domain.OutcomeP1Win, *done.Outcome)
	assert.Equal(t, 12, *done.Player1RatingDelta)

	_, err = f.eng.Resign(ctx, g.ID, "u1")
	assert.ErrorIs(t, err, game.ErrNotActive)
}

func TestGet_RefreshesLiveness(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")

	f.clock.Advance(25 * time.Second)
	v, err := f.eng.Get(ctx, g.PublicID, "u2")
	require.NoError(t, err)
	assert.Equal(t, board.PlayerTwo, v.Seat)
	assert.False(t, v.OpponentAbandoned)

	f.clock.Advance(10 * time.Second)
	v, err = f.eng.Get(ctx, g.PublicID, "u2")
	require.NoError(t, err)
	assert.True(t, v.OpponentAbandoned, "u1 silent for 35s")

	v, err = f.eng.Get(ctx, g.PublicID, "u1")
	require.NoError(t, err)
	assert.False(t, v.OpponentAbandoned)

	spectator, err := f.eng.Get(ctx, g.PublicID, "u4")
	require.NoError(t, err)
	assert.Equal(t, board.Player(0), spectator.Seat)

	_, err = f.eng.Get(ctx, "nope", "u1")
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestOpponentAbandoned_Pure(t *testing.T) {
	p2 := "u2"
	seen := t0
	g := &domain.Game{Player1ID: "u1", Player2ID: &p2, Status: domain.StatusActive}
	now := t0.Add(time.Hour)

	assert.False(t, game.OpponentAbandoned(g, "u1", now, game.AbandonThreshold), "never seen")
	g.Player2LastSeenAt = &seen
	assert.True(t, game.OpponentAbandoned(g, "u1", now, game.AbandonThreshold))
	assert.False(t, game.OpponentAbandoned(g, "u3", now, game.AbandonThreshold))
	assert.False(t, game.OpponentAbandoned(g, "u1", t0.Add(game.AbandonThreshold), game.AbandonThreshold))

	g.Status = domain.StatusCompleted
	assert.False(t, game.OpponentAbandoned(g, "u1", now, game.AbandonThreshold))
}

func TestFinalize_MissingSnapshotIsInvariantViolation(t *testing.T) {
	core, logs := observer.New(zapcore.DPanicLevel)
	defer obslog.Set(zap.New(core))()

	f := newFixture(t, nil)
	ctx := context.Background()
	p2 := "u2"
	now := t0
	broken := &domain.Game{
		Player1ID:         "u1",
		Player2ID:         &p2,
		Status:            domain.StatusActive,
		Board:             board.Empty,
		Turn:              board.PlayerOne,
		Player1LastSeenAt: &now,
		Player2LastSeenAt: &now,
	}
	require.NoError(t, f.st.CreateGame(ctx, broken, false))

	_, err := f.eng.Resign(ctx, broken.ID, "u1")
	var inv *game.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, broken.ID, inv.GameID)
	assert.Equal(t, 1, logs.FilterMessage("rating_snapshot_missing").Len())

	got, err := f.st.GameByID(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, rating.Default, f.user(t, "u1").Rating)
}

func TestRematch_Flow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")

	_, err := f.eng.RequestRematch(ctx, g.ID, "u1")
	assert.ErrorIs(t, err, game.ErrNotFinished)

	_, err = f.eng.Resign(ctx, g.ID, "u1")
	require.NoError(t, err)

	_, err = f.eng.RequestRematch(ctx, g.ID, "u3")
	assert.ErrorIs(t, err, game.ErrNotInGame)

	res, err := f.eng.RequestRematch(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, game.RematchRequested, res.Status)
	res, err = f.eng.RequestRematch(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, game.RematchRequested, res.Status)

	acc, err := f.eng.RequestRematch(ctx, g.ID, "u2")
	require.NoError(t, err)
	require.Equal(t, game.RematchAccepted, acc.Status)
	ng := acc.Game
	assert.Equal(t, domain.StatusActive, ng.Status)
	assert.Equal(t, "u2", ng.Player1ID, "seats swap")
	assert.Equal(t, "u1", ng.PlayerID(board.PlayerTwo))
	assert.Equal(t, board.PlayerOne, ng.Turn)
	// Snapshots come from the live ratings after the first game.
	assert.Equal(t, rating.Default+12, *ng.Player1RatingBefore)
	assert.Equal(t, rating.Default-12, *ng.Player2RatingBefore)

	again, err := f.eng.RequestRematch(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, game.RematchAccepted, again.Status)
	assert.Equal(t, ng.ID, again.Game.ID)
}

func TestRematch_BlockedByOtherActiveGame(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g := f.startGame(t, "u1", "u2")
	_, err := f.eng.Resign(ctx, g.ID, "u2")
	require.NoError(t, err)

	other := f.startGame(t, "u2", "u3")
	_, err = f.eng.RequestRematch(ctx, g.ID, "u1")
	require.NoError(t, err)
	_, err = f.eng.RequestRematch(ctx, g.ID, "u2")
	require.ErrorIs(t, err, game.ErrHasActiveGame)
	var ge *game.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, other.ID, ge.GameID)
}

func TestRematch_CancelledLobbyNotStarted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	g, err := f.eng.Create(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.eng.Cancel(ctx, g.ID, "u1"))
	_, err = f.eng.RequestRematch(ctx, g.ID, "u1")
	assert.ErrorIs(t, err, game.ErrNotStarted)
}
