package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/token"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, 6, cfg.DispatchHour)
	assert.Equal(t, 0, cfg.DispatchMinute)
	assert.Equal(t, 1, cfg.HashLookbackDays)
	assert.Equal(t, 30*time.Second, cfg.MailTimeout)
	assert.Equal(t, "log", cfg.MailTransport)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DISPATCH_HOUR", "7")
	t.Setenv("DISPATCH_ENABLED", "false")
	t.Setenv("MAIL_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("TZ_NAME", "UTC")
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")

	cfg := Load()
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 7, cfg.DispatchHour)
	assert.False(t, cfg.DispatchEnabled)
	assert.Equal(t, 5*time.Second, cfg.MailTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestTokenCodec(t *testing.T) {
	codec, err := App{QRMode: "hashed", QRSecret: "s"}.TokenCodec()
	require.NoError(t, err)
	assert.Equal(t, token.ModeHashed, codec.Mode)

	_, err = App{QRMode: "rot13"}.TokenCodec()
	assert.ErrorIs(t, err, token.ErrUnknownMode)
}
