package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MaxPageSize caps every object listing page.
const MaxPageSize = 100

type Config struct {
	Port                          string `mapstructure:"PORT"`
	DatabaseDriver                string `mapstructure:"DATABASE_DRIVER"`
	DatabasePath                  string `mapstructure:"DATABASE_PATH"`
	DatabaseURL                   string `mapstructure:"DATABASE_URL"`
	LogLevel                      string `mapstructure:"LOG_LEVEL"`
	LogFormat                     string `mapstructure:"LOG_FORMAT"`
	PaginationLimit               int    `mapstructure:"PAGINATION_LIMIT"`
	QuadkeyZoom                   int    `mapstructure:"QUADKEY_ZOOM"`
	BadgeSchedule                 string `mapstructure:"BADGE_SCHEDULE"`
	EnableBadgeScheduler          bool   `mapstructure:"ENABLE_BADGE_SCHEDULER"`
	DiscordBotToken               string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_PATH", "observe.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PAGINATION_LIMIT", 15)
	v.SetDefault("QUADKEY_ZOOM", 18)
	v.SetDefault("BADGE_SCHEDULE", "@hourly")
	v.SetDefault("ENABLE_BADGE_SCHEDULER", false)
	v.SetDefault("DISCORD_BOT_TOKEN", "")
	v.SetDefault("DISCORD_NOTIFICATIONS_CHANNEL_ID", "")

	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the %s driver", DriverSQLite)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.PaginationLimit <= 0 || c.PaginationLimit > MaxPageSize {
		return fmt.Errorf("PAGINATION_LIMIT must be between 1 and %d, got %d", MaxPageSize, c.PaginationLimit)
	}
	if c.QuadkeyZoom < 1 || c.QuadkeyZoom > 23 {
		return fmt.Errorf("QUADKEY_ZOOM must be between 1 and 23, got %d", c.QuadkeyZoom)
	}

	return nil
}
