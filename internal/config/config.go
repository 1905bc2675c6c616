package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the meeting agent service.
// Environment variables are parsed from the MEETING_AGENT_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Store Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/agent.db"`

	// Microsoft identity / Graph Configuration
	TenantID       string `envconfig:"TENANT_ID" default:""`
	ClientID       string `envconfig:"CLIENT_ID" default:""`
	ClientSecret   string `envconfig:"CLIENT_SECRET" default:""`
	OrganizerEmail string `envconfig:"ORGANIZER_EMAIL" default:"agent@attendly.dev"`
	GraphBaseURL   string `envconfig:"GRAPH_BASE_URL" default:"https://graph.microsoft.com/v1.0"`
	AuthBaseURL    string `envconfig:"AUTH_BASE_URL" default:"https://login.microsoftonline.com"`

	// Insight Configuration
	InsightProvider string `envconfig:"INSIGHT_PROVIDER" default:"heuristic"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel     string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GeminiBaseURL   string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`

	// Background loop cadence
	SchedulerIntervalSeconds int `envconfig:"SCHEDULER_INTERVAL_SECONDS" default:"60"`
	CaptureIntervalSeconds   int `envconfig:"CAPTURE_INTERVAL_SECONDS" default:"30"`

	// Health Configuration
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and the
// insight provider when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	allowedInsight := map[string]bool{"heuristic": true, "gemini": true}
	if !allowedInsight[c.InsightProvider] {
		return fmt.Errorf("unsupported INSIGHT_PROVIDER: %s", c.InsightProvider)
	}
	if c.InsightProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("INSIGHT_PROVIDER=gemini requires GEMINI_API_KEY")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with MEETING_AGENT_
// Example: MEETING_AGENT_HTTP_PORT, MEETING_AGENT_ORGANIZER_EMAIL
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("MEETING_AGENT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("organizer", cfg.OrganizerEmail).
		Str("insight_provider", cfg.InsightProvider).
		Int("scheduler_interval_s", cfg.SchedulerIntervalSeconds).
		Int("capture_interval_s", cfg.CaptureIntervalSeconds).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		BuildTarget: "local",
		DBDriver:    "sqlite",
		SQLitePath:  ":memory:",

		HTTPPort:       8080,
		OrganizerEmail: "agent@test.local",
		GraphBaseURL:   "http://localhost:0",
		AuthBaseURL:    "http://localhost:0",

		InsightProvider: "heuristic",

		SchedulerIntervalSeconds:  60,
		CaptureIntervalSeconds:    30,
		HealthIntervalSeconds:     30,
		HealthProbeTimeoutSeconds: 5,
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
