package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	HTTPAddr      string `mapstructure:"HTTP_ADDR"`
	ClientOrigins string `mapstructure:"CLIENT_ORIGINS"`
	DashboardURL  string `mapstructure:"DASHBOARD_URL"`

	BadgerDBPath string `mapstructure:"BADGERDB_PATH"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	OpenAIAPIKey    string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel     string        `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL   string        `mapstructure:"OPENAI_BASE_URL"`
	ClassifyTimeout time.Duration `mapstructure:"CLASSIFY_TIMEOUT"`

	MetadataTimeout  time.Duration `mapstructure:"METADATA_TIMEOUT"`
	MetadataRenderer string        `mapstructure:"METADATA_RENDERER"`

	SessionCheckInterval time.Duration `mapstructure:"SESSION_CHECK_INTERVAL"`
	ItemsPageSize        int           `mapstructure:"ITEMS_PAGE_SIZE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	SyncChannel   string `mapstructure:"SYNC_CHANNEL"`

	TelegramBotToken      string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramAllowedUserID int64  `mapstructure:"TELEGRAM_ALLOWED_USER_ID"`
}

var defaults = map[string]any{
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "json",
	"HTTP_ADDR":                ":3001",
	"CLIENT_ORIGINS":           "http://localhost:5173,http://localhost:5174",
	"DASHBOARD_URL":            "http://localhost:5173",
	"BADGERDB_PATH":            "./badger_data",
	"JWT_SECRET":               "",
	"ACCESS_TOKEN_TTL":         "1h",
	"REFRESH_TOKEN_TTL":        "720h",
	"OPENAI_API_KEY":           "",
	"OPENAI_MODEL":             "gpt-3.5-turbo",
	"OPENAI_BASE_URL":          "https://api.openai.com/v1",
	"CLASSIFY_TIMEOUT":         "20s",
	"METADATA_TIMEOUT":         "10s",
	"METADATA_RENDERER":        "http",
	"SESSION_CHECK_INTERVAL":   "5m",
	"ITEMS_PAGE_SIZE":          50,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"SYNC_CHANNEL":             "laterai:session",
	"TELEGRAM_BOT_TOKEN":       "",
	"TELEGRAM_ALLOWED_USER_ID": 0,
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks required values and ranges.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	switch c.MetadataRenderer {
	case "http", "rod":
	default:
		return fmt.Errorf("METADATA_RENDERER must be http or rod, got %q", c.MetadataRenderer)
	}
	durations := map[string]time.Duration{
		"ACCESS_TOKEN_TTL":       c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":      c.RefreshTokenTTL,
		"CLASSIFY_TIMEOUT":       c.ClassifyTimeout,
		"METADATA_TIMEOUT":       c.MetadataTimeout,
		"SESSION_CHECK_INTERVAL": c.SessionCheckInterval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.ItemsPageSize < 0 {
		return errors.New("ITEMS_PAGE_SIZE must not be negative")
	}
	return nil
}

// Origins splits CLIENT_ORIGINS into a list.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.ClientOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
