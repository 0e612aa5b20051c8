package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load("testdata")
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.AppEnv)
	require.Equal(t, "promoflow-test", cfg.AppName)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, 20, cfg.Scheduler.BatchSize)
	require.Equal(t, 4, cfg.Scheduler.Parallelism)
	require.Equal(t, 2*time.Minute, cfg.Scheduler.RetryDelay)
	require.Equal(t, 15*time.Minute, cfg.Decision.ShortInterval)
	require.Equal(t, 80.0, cfg.Decision.MaxCostPerLead)
	require.Equal(t, 8*time.Hour, cfg.Sync.OldInterval)

	// untouched keys keep their defaults
	require.Equal(t, 120*time.Minute, cfg.Decision.LongInterval)
	require.Equal(t, 5*time.Minute, cfg.Decision.QuickInterval)
	require.Equal(t, 3, cfg.Decision.MaxFailRetries)
	require.Equal(t, 30*time.Minute, cfg.Sync.NewInterval)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, 5, cfg.Scheduler.BatchSize)
	require.Equal(t, 1, cfg.Scheduler.Parallelism)
	require.Equal(t, 5*time.Minute, cfg.Scheduler.RetryDelay)
	require.Equal(t, 100.0, cfg.Decision.MinConsumption)
	require.Equal(t, 50.0, cfg.Decision.MaxCostPerLead)
	require.Equal(t, 360*time.Minute, cfg.Sync.OldInterval)
	require.Equal(t, "@every 1m", cfg.Scheduler.BeatSpec)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SCHEDULER_BATCH_SIZE", "50")
	t.Setenv("DECISION_MAX_FAIL_RETRIES", "5")

	cfg, err := Load("testdata")
	require.NoError(t, err)

	require.Equal(t, 50, cfg.Scheduler.BatchSize)
	require.Equal(t, 5, cfg.Decision.MaxFailRetries)
}
