// Package store persists games and users with gorm. Every state change on a
// game is a conditional UPDATE whose affected-row count decides whether the
// caller won the race.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
)

var (
	ErrNotFound         = errors.New("store: record not found")
	ErrGuardFailed      = errors.New("store: conditional update matched no row")
	ErrIDSpaceExhausted = errors.New("store: could not allocate a unique identifier")
)

const (
	maxCollisionRetries = 5
	connectRetries      = 3
	connectBackoff      = 2 * time.Second
)

// Store wraps a gorm handle.
type Store struct {
	db *gorm.DB

	newPublicID func() (string, error)
	newJoinCode func() (string, error)
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, newPublicID: PublicID, newJoinCode: JoinCode}
}

// PoolOptions tunes the underlying database/sql pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres through lib/pq and wraps the pool in gorm.
// Connection attempts are retried a few times so the service can start
// before the database is reachable.
func Open(ctx context.Context, dsn string, pool PoolOptions) (*Store, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	for i := 0; ; i++ {
		err = sqlDB.PingContext(ctx)
		if err == nil {
			break
		}
		if i >= connectRetries {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		obslog.L().Warn("db_connect_retry", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = sqlDB.Close()
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), Config())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	return New(db), nil
}

// Config is the gorm configuration shared by every dialect.
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&domain.User{}, &domain.Game{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation recognises duplicate keys from translated dialects and
// from lib/pq, which gorm's postgres dialect does not translate.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
