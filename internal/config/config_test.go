package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8083", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.FeedBackend)
	assert.Equal(t, 8, cfg.AggregateWorkers)
	assert.Equal(t, 10*time.Second, cfg.SettleTimeout)
	assert.Equal(t, 5*time.Second, cfg.MetadataTimeout)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FEED_BACKEND", "memory")
	t.Setenv("AGGREGATE_WORKERS", "16")
	t.Setenv("SETTLE_TIMEOUT", "3s")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.FeedBackend)
	assert.Equal(t, 16, cfg.AggregateWorkers)
	assert.Equal(t, 3*time.Second, cfg.SettleTimeout)
	assert.True(t, cfg.DebugRoutes)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("AGGREGATE_WORKERS", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("AGGREGATE_WORKERS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SETTLE_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}
