package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr       string
	AllowedOrigins []string

	DatabaseURL string
	RedisURL    string

	JWTSecret   string
	MessagesDir string

	AbandonAfter       time.Duration
	QueueStaleAfter    time.Duration
	QueueSweepInterval time.Duration

	CleanupInterval time.Duration
	WaitingGameTTL  time.Duration
	LobbyPurgeAfter time.Duration
	LeaderboardSize int

	DBMaxOpenConns int
	DBMaxIdleConns int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8080",
		AbandonAfter:       30 * time.Second,
		QueueStaleAfter:    30 * time.Second,
		QueueSweepInterval: 10 * time.Second,
		CleanupInterval:    5 * time.Minute,
		WaitingGameTTL:     time.Hour,
		LobbyPurgeAfter:    7 * 24 * time.Hour,
		LeaderboardSize:    50,
		DBMaxOpenConns:     20,
		DBMaxIdleConns:     5,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"ABANDON_AFTER", &cfg.AbandonAfter},
		{"QUEUE_STALE_AFTER", &cfg.QueueStaleAfter},
		{"QUEUE_SWEEP_INTERVAL", &cfg.QueueSweepInterval},
		{"CLEANUP_INTERVAL", &cfg.CleanupInterval},
		{"WAITING_GAME_TTL", &cfg.WaitingGameTTL},
		{"LOBBY_PURGE_AFTER", &cfg.LobbyPurgeAfter},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.env))
		if v == "" {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"LEADERBOARD_SIZE", &cfg.LeaderboardSize},
		{"DB_MAX_OPEN_CONNS", &cfg.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", &cfg.DBMaxIdleConns},
	}
	for _, i := range ints {
		if v := strings.TrimSpace(os.Getenv(i.env)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*i.dst = n
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

// ParseDuration accepts Go duration syntax or a whole number of seconds.
func ParseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
