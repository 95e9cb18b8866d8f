package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Strategy selects how records are mapped onto metric buckets.
type Strategy string

const (
	StrategyTags   Strategy = "tags"
	StrategyStages Strategy = "stages"
)

type Config struct {
	AgencyAPIKey    string
	CRMBaseURL      string
	CredentialsFile string
	Port            string
	HTTPTimeout     time.Duration
	Strategy        Strategy
	CacheTTL        time.Duration
	LocationLimit   int64
	FetchLimit      int
	LogLevel        slog.Level
}

func FromEnv() Config {
	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	ttl := 120 * time.Second
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			ttl = time.Duration(n) * time.Second
		}
	}
	strat := StrategyTags
	if os.Getenv("METRIC_STRATEGY") == string(StrategyStages) {
		strat = StrategyStages
	}
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}
	return Config{
		AgencyAPIKey:    os.Getenv("AGENCY_API_KEY"),
		CRMBaseURL:      envOr("CRM_API_URL", "https://rest.gohighlevel.com/v1"),
		CredentialsFile: envOr("CREDENTIALS_FILE", "credentials.csv"),
		Port:            envOr("PORT", "8080"),
		HTTPTimeout:     to,
		Strategy:        strat,
		CacheTTL:        ttl,
		LocationLimit:   int64(intOr("LOCATION_CONCURRENCY", 6)),
		FetchLimit:      intOr("FETCH_CONCURRENCY", 4),
		LogLevel:        lvl,
	}
}

// Validate rechaza un arranque sin credencial de agencia.
func (c Config) Validate() error {
	if c.AgencyAPIKey == "" {
		return errors.New("AGENCY_API_KEY is required")
	}
	if c.LocationLimit < 1 || c.FetchLimit < 1 {
		return errors.New("concurrency limits must be >= 1")
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func intOr(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
