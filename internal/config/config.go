package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// weather: open-meteo needs no api key; home coordinates are the
	// fallback when the request carries no location and geo ip fails
	OpenMeteoBaseURL string  `toml:"open_meteo_base_url"`
	HomeLat          float64 `toml:"home_lat"`
	HomeLon          float64 `toml:"home_lon"`

	// strava importer
	StravaBaseURL  string `toml:"strava_base_url"`
	StravaOAuthURL string `toml:"strava_oauth_url"`

	ImportRateLimitAllowedPerMin int `toml:"import_rate_limit_allowed_per_min"`

	// plan tuning; the gate and cadence values come from the original
	// heuristics and are deliberately configurable
	SundayFatigueGateTSS     int `toml:"sunday_fatigue_gate_tss"`
	PlanRecoveryCadenceWeeks int `toml:"plan_recovery_cadence_weeks"`

	SentryEnabled bool `toml:"sentry_enabled"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var configToml Toml
	if err := toml.Unmarshal(configBytes, &configToml); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	cfg, err := configToml.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env %s empty", env)
	}

	cfg.Environment = env
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OpenMeteoBaseURL == "" {
		c.OpenMeteoBaseURL = "https://api.open-meteo.com"
	}
	if c.StravaBaseURL == "" {
		c.StravaBaseURL = "https://www.strava.com"
	}
	if c.StravaOAuthURL == "" {
		c.StravaOAuthURL = "https://www.strava.com/oauth/token"
	}
	if c.ImportRateLimitAllowedPerMin <= 0 {
		c.ImportRateLimitAllowedPerMin = 5
	}
	if c.SundayFatigueGateTSS <= 0 {
		c.SundayFatigueGateTSS = 500
	}
	if c.PlanRecoveryCadenceWeeks <= 0 {
		c.PlanRecoveryCadenceWeeks = 4
	}
}
