// Package config loads runtime configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	DBPath   string
	Tenant   string
	Provider string
	Backfill BackfillConfig
	LogLevel string
}

type BackfillConfig struct {
	PageSize int
	DaysBack int
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DB_PATH", "revenue.db")
	viper.SetDefault("TENANT", "default")
	viper.SetDefault("PROVIDER", "hotmart")
	viper.SetDefault("BACKFILL_PAGE_SIZE", "100")
	viper.SetDefault("BACKFILL_DAYS_BACK", "30")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.AutomaticEnv()

	// A missing .env is fine; env vars and defaults cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:     getEnvOrViper("PORT", "8080"),
		DBPath:   getEnvOrViper("DB_PATH", "revenue.db"),
		Tenant:   getEnvOrViper("TENANT", "default"),
		Provider: getEnvOrViper("PROVIDER", "hotmart"),
		Backfill: BackfillConfig{
			PageSize: getIntOrViper("BACKFILL_PAGE_SIZE", 100),
			DaysBack: getIntOrViper("BACKFILL_DAYS_BACK", 30),
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	if cfg.Tenant == "" {
		return nil, fmt.Errorf("TENANT must not be empty")
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("PROVIDER must not be empty")
	}
	if cfg.Backfill.PageSize <= 0 {
		return nil, fmt.Errorf("BACKFILL_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntOrViper(key string, defaultValue int) int {
	if os.Getenv(key) != "" || viper.IsSet(key) {
		if v := viper.GetInt(key); v != 0 {
			return v
		}
	}
	return defaultValue
}
