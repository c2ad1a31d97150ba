// Package game drives a match from creation to its result. Every transition
// is a read followed by a guarded write; a lost guard becomes a typed error
// or, where repeating the request is harmless, the current record.
package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store"
)

// AbandonThreshold is how long a player may stay silent in an active game
// before the opponent can claim the win.
const AbandonThreshold = 30 * time.Second

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	UsersByID(ctx context.Context, ids ...string) (map[string]*domain.User, error)
	CreateGame(ctx context.Context, g *domain.Game, withCode bool) error
	GameByID(ctx context.Context, id string) (*domain.Game, error)
	GameByPublicID(ctx context.Context, publicID string) (*domain.Game, error)
	GameByJoinCode(ctx context.Context, code string) (*domain.Game, error)
	ActiveGameFor(ctx context.Context, userID string) (*domain.Game, error)
	ActiveGamesFor(ctx context.Context, userIDs ...string) ([]domain.Game, error)
	StartGame(ctx context.Context, id, player2ID string, first board.Player, at time.Time) (*domain.Game, error)
	CancelGame(ctx context.Context, id, creatorID string, at time.Time) error
	TouchPlayer(ctx context.Context, id string, p board.Player, at time.Time) error
	CommitMove(ctx context.Context, id string, guard store.Guard, c store.MoveCommit) error
	Finalize(ctx context.Context, id string, guard store.Guard, f store.Finalization) error
	RecordRematchRequest(ctx context.Context, id string, p board.Player, at time.Time) error
	LinkRematch(ctx context.Context, id, rematchID string, at time.Time) error
	DeleteGame(ctx context.Context, id string) error
}

// ResultSink receives every game right after its result is committed.
// Failures stay inside the sink.
type ResultSink interface {
	GameFinalized(ctx context.Context, g *domain.Game)
}

type Engine struct {
	store        Store
	clock        clockwork.Clock
	abandonAfter time.Duration
	firstTurn    func() board.Player
	sink         ResultSink
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithAbandonThreshold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.abandonAfter = d
		}
	}
}

// WithFirstTurn replaces the coin flip used on join and matchmaking.
func WithFirstTurn(f func() board.Player) Option { return func(e *Engine) { e.firstTurn = f } }

func NewEngine(st Store, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		clock:        clockwork.NewRealClock(),
		abandonAfter: AbandonThreshold,
		firstTurn:    coinFlip,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AttachResultSink wires a consumer for finalized games.
func (e *Engine) AttachResultSink(s ResultSink) {
	if e != nil {
		e.sink = s
	}
}

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

func coinFlip() board.Player {
	if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 1 {
		return board.PlayerTwo
	}
	return board.PlayerOne
}

// load maps a missing game to ErrNotFound.
func (e *Engine) load(ctx context.Context, id string) (*domain.Game, error) {
	g, err := e.store.GameByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	return g, nil
}

// ActiveGame returns the user's WAITING or ACTIVE game, or nil.
func (e *Engine) ActiveGame(ctx context.Context, userID string) (*domain.Game, error) {
	g, err := e.store.ActiveGameFor(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active game: %w", err)
	}
	return g, nil
}

func (e *Engine) ensureFree(ctx context.Context, userID string) error {
	g, err := e.ActiveGame(ctx, userID)
	if err != nil {
		return err
	}
	if g != nil {
		return withGame(ErrHasActiveGame, g.ID)
	}
	return nil
}

// Create opens a private WAITING game with a join code.
func (e *Engine) Create(ctx context.Context, userID string) (*domain.Game, error) {
	if err := e.ensureFree(ctx, userID); err != nil {
		return nil, err
	}
	now := e.now()
	g := &domain.Game{
		Player1ID:         userID,
		Status:            domain.StatusWaiting,
		Board:             board.Empty,
		Turn:              board.PlayerOne,
		Moves:             domain.MoveLog{},
		Player1LastSeenAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.CreateGame(ctx, g, true); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	obslog.L().Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("public_id", g.PublicID),
		zap.String("player1_id", userID),
	)
	return g, nil
}

// JoinByCode seats userID as player two and starts the game.
func (e *Engine) JoinByCode(ctx context.Context, code, userID string) (*domain.Game, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !store.ValidJoinCode(code) {
		return nil, ErrInvalidCodeFormat
	}
	g, err := e.store.GameByJoinCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game by code: %w", err)
	}
	if err := joinable(g); err != nil {
		return nil, err
	}
	if g.Player1ID == userID {
		return nil, ErrCannotJoinOwnGame
	}
	if err := e.ensureFree(ctx, userID); err != nil {
		return nil, err
	}

	first := e.firstTurn()
	started, err := e.store.StartGame(ctx, g.ID, userID, first, e.now())
	if errors.Is(err, store.ErrGuardFailed) {
		cur, lerr := e.load(ctx, g.ID)
		if lerr != nil {
			return nil, lerr
		}
		if jerr := joinable(cur); jerr != nil {
			return nil, jerr
		}
		return nil, ErrAlreadyStarted
	}
	if err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	obslog.L().Info("game_join",
		zap.String("game_id", started.ID),
		zap.String("player2_id", userID),
		zap.Int("first_turn", int(first)),
	)
	return started, nil
}

// joinable treats a cancelled lobby as gone and anything else that is not an
// open lobby as already started.
func joinable(g *domain.Game) error {
	if g.Status == domain.StatusAbandoned && !g.Started() {
		return ErrNotFound
	}
	if g.Status != domain.StatusWaiting || g.Started() {
		return ErrAlreadyStarted
	}
	return nil
}

// View is a game as seen by one requester.
type View struct {
	Game              *domain.Game
	Seat              board.Player
	OpponentAbandoned bool
}

// Get loads a game by public id. A participant's read doubles as their
// heartbeat while the game is open.
func (e *Engine) Get(ctx context.Context, publicID, userID string) (*View, error) {
	g, err := e.store.GameByPublicID(ctx, publicID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	return e.view(ctx, g, userID)
}

// GetByID is Get keyed by the internal id.
func (e *Engine) GetByID(ctx context.Context, id, userID string) (*View, error) {
	g, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.view(ctx, g, userID)
}

func (e *Engine) view(ctx context.Context, g *domain.Game, userID string) (*View, error) {
	seat := g.PlayerOf(userID)
	now := e.now()
	if seat != 0 && g.Status.Open() {
		if err := e.store.TouchPlayer(ctx, g.ID, seat, now); err != nil {
			return nil, err
		}
		if seat == board.PlayerOne {
			g.Player1LastSeenAt = &now
		} else {
			g.Player2LastSeenAt = &now
		}
	}
	return &View{Game: g, Seat: seat, OpponentAbandoned: OpponentAbandoned(g, userID, now, e.abandonAfter)}, nil
}

// CheckAbandonment reports whether userID's opponent has gone silent.
func (e *Engine) CheckAbandonment(g *domain.Game, userID string) bool {
	return OpponentAbandoned(g, userID, e.now(), e.abandonAfter)
}

// OpponentAbandoned applies only to ACTIVE games with both seats filled. An
// opponent who has never been seen is not considered gone.
func OpponentAbandoned(g *domain.Game, userID string, now time.Time, threshold time.Duration) bool {
	if g == nil || g.Status != domain.StatusActive || !g.Started() {
		return false
	}
	seat := g.PlayerOf(userID)
	if seat == 0 {
		return false
	}
	seen := g.LastSeen(seat.Other())
	if seen == nil {
		return false
	}
	return now.Sub(*seen) > threshold
}

// Cancel abandons a lobby on behalf of its creator. Cancelling an already
// cancelled lobby succeeds.
func (e *Engine) Cancel(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Player1ID != userID {
		return ErrNotCreator
	}
	if err := cancellable(g); err != nil || g.Status == domain.StatusAbandoned {
		return err
	}
	err = e.store.CancelGame(ctx, g.ID, userID, e.now())
	if errors.Is(err, store.ErrGuardFailed) {
		cur, lerr := e.load(ctx, g.ID)
		if lerr != nil {
			return lerr
		}
		if cerr := cancellable(cur); cerr != nil {
			return cerr
		}
		if cur.Status == domain.StatusAbandoned {
			return nil
		}
		return ErrAlreadyStarted
	}
	if err != nil {
		return fmt.Errorf("cancel game: %w", err)
	}
	obslog.L().Info("game_cancel", zap.String("game_id", g.ID), zap.String("user_id", userID))
	return nil
}

func cancellable(g *domain.Game) error {
	switch {
	case g.Started() && g.Status.Open():
		return ErrOpponentAlreadyJoined
	case g.Started(), g.Status == domain.StatusCompleted:
		return ErrAlreadyStarted
	}
	return nil
}

// Pair creates an ACTIVE game between two users with a random first turn.
// Ratings are snapshotted from the users' current records.
func (e *Engine) Pair(ctx context.Context, player1ID, player2ID string) (*domain.Game, error) {
	g, err := e.newActiveGame(ctx, player1ID, player2ID, e.firstTurn())
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_pair",
		zap.String("game_id", g.ID),
		zap.String("player1_id", player1ID),
		zap.String("player2_id", player2ID),
	)
	return g, nil
}

func (e *Engine) newActiveGame(ctx context.Context, player1ID, player2ID string, first board.Player) (*domain.Game, error) {
	users, err := e.store.UsersByID(ctx, player1ID, player2ID)
	if err != nil {
		return nil, err
	}
	u1, u2 := users[player1ID], users[player2ID]
	if u1 == nil || u2 == nil {
		return nil, ErrNotFound
	}
	now := e.now()
	r1, r2 := u1.Rating, u2.Rating
	p2 := player2ID
	g := &domain.Game{
		Player1ID:           player1ID,
		Player2ID:           &p2,
		Status:              domain.StatusActive,
		Board:               board.Empty,
		Turn:                first,
		Moves:               domain.MoveLog{},
		Player1RatingBefore: &r1,
		Player2RatingBefore: &r2,
		Player1LastSeenAt:   &now,
		Player2LastSeenAt:   &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.store.CreateGame(ctx, g, false); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return g, nil
}
