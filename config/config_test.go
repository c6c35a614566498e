package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "test-token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.BotToken)
	assert.Equal(t, ">>", cfg.CommandPrefix)
	assert.Equal(t, "👍", cfg.VoteSymbol)
	assert.Equal(t, 3, cfg.MaxSubmissions)
	assert.Equal(t, 6000000, cfg.MaxImageBytes)
	assert.Equal(t, 120, cfg.MinImageSide)
	assert.Equal(t, "data/emotes.db", cfg.DBPath)
	assert.Equal(t, time.Minute, cfg.FlushInterval)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.UseSecretManager())
}

func TestLoad_AdminLists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_ROLE_IDS", "111, 222,,333")
	t.Setenv("ADMIN_USER_IDS", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"111", "222", "333"}, cfg.AdminRoleIDs)
	assert.Equal(t, []string{"42"}, cfg.AdminUserIDs)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMMAND_PREFIX", "!")
	t.Setenv("VOTE_CHANNEL_ID", "999")
	t.Setenv("FLUSH_INTERVAL", "30s")
	t.Setenv("WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, "999", cfg.VoteChannelID)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoad_SecretManagerPath(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "proj")
	t.Setenv("TOKEN_SECRET_NAME", "bot-token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.UseSecretManager())
	assert.Equal(t, "bot-token", cfg.TokenSecretName)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			BotToken: "t", CommandPrefix: ">>", VoteSymbol: "👍",
			Workers: 1, QueueSize: 1, DBPath: "x.db", TokenSecretName: "s",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no token source", func(c *Config) { c.BotToken = "" }, "BOT_TOKEN is required"},
		{"secret name missing", func(c *Config) { c.BotToken = ""; c.GoogleCloudProject = "p"; c.TokenSecretName = "" }, "TOKEN_SECRET_NAME is required when BOT_TOKEN is unset"},
		{"blank prefix", func(c *Config) { c.CommandPrefix = "  " }, "COMMAND_PREFIX must not be blank"},
		{"no symbol", func(c *Config) { c.VoteSymbol = "" }, "VOTE_SYMBOL must not be empty"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "WORKERS must be positive, got 0"},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, "QUEUE_SIZE must be positive, got 0"},
		{"negative limit", func(c *Config) { c.MaxSubmissions = -1 }, "MAX_SUBMISSIONS, MAX_IMAGE_BYTES and MIN_IMAGE_SIDE must not be negative"},
		{"negative interval", func(c *Config) { c.FlushInterval = -time.Second }, "FLUSH_INTERVAL must not be negative"},
		{"no db path", func(c *Config) { c.DBPath = "" }, "DB_PATH is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := validate(&cfg)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}

	cfg := base()
	assert.NoError(t, validate(&cfg))
}
