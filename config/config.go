// Package config loads the bot configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	BotToken      string `env:"BOT_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" default:">>"`
	VoteSymbol    string `env:"VOTE_SYMBOL" default:"👍"`

	AdminRoleIDs []string `env:"ADMIN_ROLE_IDS"`
	AdminUserIDs []string `env:"ADMIN_USER_IDS"`

	// VoteChannelID, when set, receives every candidate post regardless of
	// where the add command was issued.
	VoteChannelID  string `env:"VOTE_CHANNEL_ID"`
	MaxSubmissions int    `env:"MAX_SUBMISSIONS" default:"3"`
	MaxImageBytes  int    `env:"MAX_IMAGE_BYTES" default:"6000000"`
	MinImageSide   int    `env:"MIN_IMAGE_SIDE" default:"120"`

	DBPath        string        `env:"DB_PATH" default:"data/emotes.db"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" default:"1m"`
	Workers       int           `env:"WORKERS" default:"4"`
	QueueSize     int           `env:"QUEUE_SIZE" default:"256"`
	Port          string        `env:"PORT" default:"8080"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`
	TokenSecretName    string `env:"TOKEN_SECRET_NAME" default:"discord-token"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.AdminRoleIDs = clean(cfg.AdminRoleIDs)
	cfg.AdminUserIDs = clean(cfg.AdminUserIDs)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// UseSecretManager reports whether the token should be fetched from Secret Manager.
func (c *Config) UseSecretManager() bool {
	return c.BotToken == "" && c.GoogleCloudProject != ""
}

func validate(cfg *Config) error {
	if cfg.BotToken == "" && cfg.GoogleCloudProject == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if cfg.UseSecretManager() && cfg.TokenSecretName == "" {
		return errors.New("TOKEN_SECRET_NAME is required when BOT_TOKEN is unset")
	}
	if strings.TrimSpace(cfg.CommandPrefix) == "" {
		return errors.New("COMMAND_PREFIX must not be blank")
	}
	if cfg.VoteSymbol == "" {
		return errors.New("VOTE_SYMBOL must not be empty")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("WORKERS must be positive, got %d", cfg.Workers)
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}
	if cfg.MaxSubmissions < 0 || cfg.MaxImageBytes < 0 || cfg.MinImageSide < 0 {
		return errors.New("MAX_SUBMISSIONS, MAX_IMAGE_BYTES and MIN_IMAGE_SIDE must not be negative")
	}
	if cfg.FlushInterval < 0 {
		return errors.New("FLUSH_INTERVAL must not be negative")
	}
	if cfg.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	return nil
}

func clean(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
