package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelcm/ghl-stats-go/internal/config"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := config.FromEnv()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StrategyTags, cfg.Strategy)
	assert.Equal(t, 120*time.Second, cfg.CacheTTL)
	assert.Equal(t, int64(6), cfg.LocationLimit)
	assert.Equal(t, 4, cfg.FetchLimit)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("METRIC_STRATEGY", "stages")
	t.Setenv("CACHE_TTL_SECONDS", "0")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "30")
	t.Setenv("LOCATION_CONCURRENCY", "2")

	cfg := config.FromEnv()
	assert.Equal(t, config.StrategyStages, cfg.Strategy)
	assert.Equal(t, time.Duration(0), cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, int64(2), cfg.LocationLimit)
}

func TestValidateRequiresAgencyKey(t *testing.T) {
	cfg := config.Config{LocationLimit: 6, FetchLimit: 4}
	assert.Error(t, cfg.Validate())

	cfg.AgencyAPIKey = "agency-key"
	assert.NoError(t, cfg.Validate())
}
