// Package cleanup runs periodic housekeeping: expiring forgotten lobbies,
// deleting old cancelled ones and rebuilding the leaderboard cache.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
)

const (
	DefaultInterval   = 5 * time.Minute
	DefaultWaitingTTL = time.Hour
	DefaultPurgeAfter = 7 * 24 * time.Hour
)

type Store interface {
	ExpireWaitingGames(ctx context.Context, cutoff, at time.Time) (int64, error)
	PurgeAbandonedLobbies(ctx context.Context, cutoff time.Time) (int64, error)
	TopUsers(ctx context.Context, limit int) ([]domain.User, error)
}

// Rebuilder reloads a ranking cache from the database.
type Rebuilder interface {
	Rebuild(ctx context.Context, users []domain.User) error
}

type Config struct {
	Interval   time.Duration
	WaitingTTL time.Duration
	PurgeAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.WaitingTTL <= 0 {
		c.WaitingTTL = DefaultWaitingTTL
	}
	if c.PurgeAfter <= 0 {
		c.PurgeAfter = DefaultPurgeAfter
	}
	return c
}

// Report counts what one pass changed.
type Report struct {
	Expired int64
	Purged  int64
	Ranked  int
}

type Janitor struct {
	st    Store
	board Rebuilder
	clock clockwork.Clock
	cfg   Config
}

// New builds a janitor. board may be nil when Redis is not configured.
func New(st Store, board Rebuilder, clock clockwork.Clock, cfg Config) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Janitor{st: st, board: board, clock: clock, cfg: cfg.withDefaults()}
}

// RunOnce performs every task and joins their errors.
func (j *Janitor) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	var errs []error
	now := j.clock.Now().UTC()

	n, err := j.st.ExpireWaitingGames(ctx, now.Add(-j.cfg.WaitingTTL), now)
	if err != nil {
		errs = append(errs, err)
	}
	rep.Expired = n

	n, err = j.st.PurgeAbandonedLobbies(ctx, now.Add(-j.cfg.PurgeAfter))
	if err != nil {
		errs = append(errs, err)
	}
	rep.Purged = n

	if j.board != nil {
		// Every user goes in; ranks are positions in the full set.
		users, err := j.st.TopUsers(ctx, 0)
		if err == nil {
			err = j.board.Rebuild(ctx, users)
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			rep.Ranked = len(users)
		}
	}
	return rep, errors.Join(errs...)
}

// Register schedules RunOnce on s.
func (j *Janitor) Register(ctx context.Context, s gocron.Scheduler) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(j.cfg.Interval),
		gocron.NewTask(func() {
			rep, err := j.RunOnce(ctx)
			if err != nil {
				obslog.L().Warn("cleanup_failed", zap.Error(err))
			}
			if rep.Expired > 0 || rep.Purged > 0 {
				obslog.L().Info("cleanup_done",
					zap.Int64("expired", rep.Expired),
					zap.Int64("purged", rep.Purged),
					zap.Int("ranked", rep.Ranked),
				)
			}
		}),
		gocron.WithName("cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
