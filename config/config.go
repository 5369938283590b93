// Package config loads server configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server's runtime settings.
type Config struct {
	Port              int
	DBPath            string
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// Load reads configuration from the environment with sane defaults.
// Missing .env is not an error; explicit env vars always win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:              envInt("PORT", 8080),
		DBPath:            envString("DB_PATH", "tuition.db"),
		SchedulerEnabled:  envBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: envDuration("SCHEDULER_INTERVAL", 24*time.Hour),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
