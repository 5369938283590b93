package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "SCHEDULER_ENABLED", "SCHEDULER_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "tuition.db", cfg.DBPath)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, 24*time.Hour, cfg.SchedulerInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/billing.db")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_INTERVAL", "1h30m")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/billing.db", cfg.DBPath)
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, 90*time.Minute, cfg.SchedulerInterval)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("SCHEDULER_ENABLED", "maybe")
	t.Setenv("SCHEDULER_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, 24*time.Hour, cfg.SchedulerInterval)
}
