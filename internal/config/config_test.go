package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/c4")
	t.Setenv("JWT_SECRET", "k")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.AbandonAfter)
	assert.Equal(t, 30*time.Second, cfg.QueueStaleAfter)
	assert.Equal(t, 10*time.Second, cfg.QueueSweepInterval)
	assert.Equal(t, 168*time.Hour, cfg.LobbyPurgeAfter)
	assert.Equal(t, 50, cfg.LeaderboardSize)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ABANDON_AFTER", "45")
	t.Setenv("WAITING_GAME_TTL", "90m")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("LEADERBOARD_SIZE", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.AbandonAfter)
	assert.Equal(t, 90*time.Minute, cfg.WaitingGameTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 50, cfg.LeaderboardSize)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "k")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	setRequired(t)
	t.Setenv("QUEUE_STALE_AFTER", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "QUEUE_STALE_AFTER")
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)
	_, err = ParseDuration("0")
	assert.Error(t, err)
	_, err = ParseDuration("-1s")
	assert.Error(t, err)
}
