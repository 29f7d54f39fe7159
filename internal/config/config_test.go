package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "arena.db", cfg.LocalDBPath)
	require.Equal(t, 10*time.Second, cfg.BackendTimeout)
	require.Equal(t, 168*time.Hour, cfg.AuthSessionTTL)
	require.False(t, cfg.RemoteConfigured())
	require.False(t, cfg.TelegramEnabled())
}

func TestValidateRemoteNeedsSecret(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.RemoteConfigured())
	require.Equal(t, "postgres://arena:@localhost:5432/arena?sslmode=disable", cfg.DatabaseDSN())
}

func TestValidateTelegramNeedsChat(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "0")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("BOT_ALLOWED_USER_IDS", "1, 2,3")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, cfg.AllowedUserIDs)
}

func TestParseInt64CSVRejectsGarbage(t *testing.T) {
	_, err := parseInt64CSV("1,x")
	require.Error(t, err)

	ids, err := parseInt64CSV("  ")
	require.NoError(t, err)
	require.Nil(t, ids)
}
