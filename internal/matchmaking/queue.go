// Package matchmaking pairs players waiting for a random opponent. The queue
// lives in one process and every operation runs under a single mutex, database
// calls included, so a match decision and the game it creates are one step.
package matchmaking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/game"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
)

const (
	// StaleAfter drops an entry whose owner has not polled for this long.
	StaleAfter = 30 * time.Second
	// SweepInterval is the period of the background stale sweep.
	SweepInterval = 10 * time.Second
)

var ErrInvalidArgs = errors.New("matchmaking: invalid arguments")

// Games is what the queue needs from the game engine.
type Games interface {
	ActiveGame(ctx context.Context, userID string) (*domain.Game, error)
	Cancel(ctx context.Context, gameID, userID string) error
	Pair(ctx context.Context, player1ID, player2ID string) (*domain.Game, error)
}

type Status string

const (
	StatusQueued        Status = "queued"
	StatusAlreadyQueued Status = "already_queued"
	StatusHasActiveGame Status = "has_active_game"
	StatusMatched       Status = "matched"
	StatusNotQueued     Status = "not_queued"
	StatusLeft          Status = "left"
)

// Player identifies who is queueing. Name and rating are for display.
type Player struct {
	UserID      string
	DisplayName string
	Rating      int
}

// Entry is one waiting player.
type Entry struct {
	Player
	JoinedAt    time.Time
	HeartbeatAt time.Time
}

// Result reports the outcome of a queue operation.
type Result struct {
	Status   Status
	GameID   string
	QueuedAt time.Time
}

type Queue struct {
	mu      sync.Mutex
	entries []*Entry

	games      Games
	clock      clockwork.Clock
	staleAfter time.Duration
}

type Option func(*Queue)

func WithClock(c clockwork.Clock) Option { return func(q *Queue) { q.clock = c } }

func WithStaleAfter(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.staleAfter = d
		}
	}
}

func NewQueue(games Games, opts ...Option) *Queue {
	q := &Queue{games: games, clock: clockwork.NewRealClock(), staleAfter: StaleAfter}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) now() time.Time { return q.clock.Now().UTC() }

// Join enqueues p or matches them with the longest-waiting other player.
func (q *Queue) Join(ctx context.Context, p Player) (*Result, error) {
	if p.UserID == "" {
		return nil, ErrInvalidArgs
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if i := q.indexOf(p.UserID); i >= 0 {
		e := q.entries[i]
		e.HeartbeatAt = now
		return &Result{Status: StatusAlreadyQueued, QueuedAt: e.JoinedAt}, nil
	}

	g, err := q.games.ActiveGame(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if g != nil {
		if !ownLobby(g, p.UserID) {
			return &Result{Status: StatusHasActiveGame, GameID: g.ID}, nil
		}
		// A lonely lobby of their own would block matching; drop it.
		if err := q.games.Cancel(ctx, g.ID, p.UserID); err != nil {
			if errors.Is(err, game.ErrOpponentAlreadyJoined) || errors.Is(err, game.ErrAlreadyStarted) {
				return &Result{Status: StatusHasActiveGame, GameID: g.ID}, nil
			}
			return nil, err
		}
		obslog.L().Info("queue_lobby_cancelled", zap.String("user_id", p.UserID), zap.String("game_id", g.ID))
	}

	q.sweepLocked(now)

	for i, cand := range q.entries {
		if cand.UserID == p.UserID {
			continue
		}
		q.removeAt(i)

		// The candidate may have started a game since queueing and not yet
		// been swept. Keep the caller waiting instead of double-booking them.
		busy, err := q.games.ActiveGame(ctx, cand.UserID)
		if err != nil {
			q.insertAt(i, cand)
			return nil, err
		}
		if busy != nil {
			obslog.L().Info("queue_candidate_busy",
				zap.String("user_id", p.UserID),
				zap.String("candidate_id", cand.UserID),
				zap.String("game_id", busy.ID),
			)
			q.push(p, now)
			return &Result{Status: StatusQueued, QueuedAt: now}, nil
		}

		g, err := q.games.Pair(ctx, cand.UserID, p.UserID)
		if err != nil {
			q.insertAt(i, cand)
			return nil, err
		}
		obslog.L().Info("queue_match",
			zap.String("game_id", g.ID),
			zap.String("player1_id", cand.UserID),
			zap.String("player2_id", p.UserID),
			zap.Duration("waited", now.Sub(cand.JoinedAt)),
		)
		return &Result{Status: StatusMatched, GameID: g.ID}, nil
	}

	q.push(p, now)
	obslog.L().Info("queue_join", zap.String("user_id", p.UserID), zap.Int("queue_len", len(q.entries)))
	return &Result{Status: StatusQueued, QueuedAt: now}, nil
}

func ownLobby(g *domain.Game, userID string) bool {
	return g.Status == domain.StatusWaiting && g.Player1ID == userID && !g.Started()
}

// Status doubles as the heartbeat for a queued player. A player who is no
// longer queued is told about a game that matched them since the last poll.
func (q *Queue) Status(ctx context.Context, userID string) (*Result, error) {
	if userID == "" {
		return nil, ErrInvalidArgs
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(userID)
	if i < 0 {
		g, err := q.games.ActiveGame(ctx, userID)
		if err != nil {
			return nil, err
		}
		if g != nil && g.Status == domain.StatusActive {
			return &Result{Status: StatusMatched, GameID: g.ID}, nil
		}
		return &Result{Status: StatusNotQueued}, nil
	}
	now := q.now()
	e := q.entries[i]
	e.HeartbeatAt = now
	q.sweepLocked(now)
	return &Result{Status: StatusQueued, QueuedAt: e.JoinedAt}, nil
}

// Leave removes userID if present.
func (q *Queue) Leave(userID string) *Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(userID)
	if i < 0 {
		return &Result{Status: StatusNotQueued}
	}
	q.removeAt(i)
	obslog.L().Info("queue_leave", zap.String("user_id", userID))
	return &Result{Status: StatusLeft}
}

// Sweep drops stale entries and returns how many were removed.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sweepLocked(q.now())
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot copies the entries in queue order.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// RegisterSweeper schedules Sweep on s every interval.
func (q *Queue) RegisterSweeper(s gocron.Scheduler, interval time.Duration) (gocron.Job, error) {
	if interval <= 0 {
		interval = SweepInterval
	}
	return s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { q.Sweep() }),
		gocron.WithName("matchmaking-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}

func (q *Queue) sweepLocked(now time.Time) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if now.Sub(e.HeartbeatAt) > q.staleAfter {
			removed++
			obslog.L().Info("queue_expire", zap.String("user_id", e.UserID), zap.Time("heartbeat_at", e.HeartbeatAt))
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return removed
}

func (q *Queue) indexOf(userID string) int {
	for i, e := range q.entries {
		if e.UserID == userID {
			return i
		}
	}
	return -1
}

func (q *Queue) push(p Player, now time.Time) {
	q.entries = append(q.entries, &Entry{Player: p, JoinedAt: now, HeartbeatAt: now})
}

func (q *Queue) removeAt(i int) {
	copy(q.entries[i:], q.entries[i+1:])
	q.entries[len(q.entries)-1] = nil
	q.entries = q.entries[:len(q.entries)-1]
}

func (q *Queue) insertAt(i int, e *Entry) {
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}
