package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Challenge.SessionLength)
	assert.False(t, cfg.Payments.StrictPrefix)
	assert.True(t, cfg.Email.DevMode)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PAYMENTS_STRICT_PREFIX", "true")
	t.Setenv("CHALLENGE_SESSION_LENGTH", "90m")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://studio.example.com, ,https://admin.example.com")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.True(t, cfg.Payments.StrictPrefix)
	assert.Equal(t, 90*time.Minute, cfg.Challenge.SessionLength)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, []string{"https://studio.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
}
