package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string
	DBDriver      string
	DBPath        string
	DatabaseURL   string

	// AdminUserIDs lists Telegram users allowed to manage offers. Empty means everyone.
	AdminUserIDs map[int64]bool
	// AnnounceChatID is the announcement destination; zero means the chat the command came from.
	AnnounceChatID   int64
	ContactText      string
	AnnounceTemplate string

	GatewayTimeout    time.Duration
	MaxUpdateAttempts int

	LogLevel       string
	HTTPAddr       string
	OtelEndpoint   string
	OtelAuthHeader string
}

// NewConfig creates a new configuration from environment variables
func NewConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		DBDriver:         getEnv("DB_DRIVER", "sqlite3"),
		DBPath:           getEnv("OFFERS_DB_PATH", "offers.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ContactText:      getEnv("CONTACT_TEXT", "LMK if interested."),
		AnnounceTemplate: getEnv("ANNOUNCE_TEMPLATE", ""),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		HTTPAddr:         getEnv("HTTP_ADDR", ""),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", ""),
		OtelAuthHeader:   getEnv("OTEL_AUTH_HEADER", ""),
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	var err error
	if cfg.AdminUserIDs, err = parseAdminIDs(getEnv("ADMIN_USER_IDS", "")); err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(getEnv("ANNOUNCE_CHAT_ID", "")); v != "" {
		if cfg.AnnounceChatID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "invalid ANNOUNCE_CHAT_ID %q", v)
		}
	}

	if cfg.GatewayTimeout, err = time.ParseDuration(getEnv("GATEWAY_TIMEOUT", "10s")); err != nil {
		return nil, errors.Wrap(err, "invalid GATEWAY_TIMEOUT")
	}

	if cfg.MaxUpdateAttempts, err = strconv.Atoi(getEnv("MAX_UPDATE_ATTEMPTS", "5")); err != nil || cfg.MaxUpdateAttempts <= 0 {
		return nil, errors.Errorf("invalid MAX_UPDATE_ATTEMPTS %q", getEnv("MAX_UPDATE_ATTEMPTS", "5"))
	}

	return cfg, nil
}

// IsAdmin reports whether userID may run admin commands
func (c *Config) IsAdmin(userID int64) bool {
	if len(c.AdminUserIDs) == 0 {
		return true
	}
	return c.AdminUserIDs[userID]
}

func parseAdminIDs(value string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ADMIN_USER_IDS entry %q", item)
		}
		ids[id] = true
	}
	return ids, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
