package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ConfirmMode selects how a freshly extracted record is accepted.
type ConfirmMode string

const (
	// ConfirmAuto saves records as pending without a YES/NO round trip.
	ConfirmAuto ConfirmMode = "auto"
	// ConfirmManual asks the worker to reply YES/NO before moving on.
	ConfirmManual ConfirmMode = "manual"
)

// Config holds the configuration for the intake service.
// Environment variables are parsed from the CREWLEDGER_ prefix.
type Config struct {
	// Build target selects the deployment shape: local (sqlite) or cloud (postgres).
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres / SQLite configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/crewledger.db"`

	// Messaging gateway credentials, used to fetch media attachments.
	GatewayAccountSID string `envconfig:"GATEWAY_ACCOUNT_SID" default:""`
	GatewayAuthToken  string `envconfig:"GATEWAY_AUTH_TOKEN" default:""`

	// Recognition service (OpenAI-compatible chat completions endpoint).
	VisionBaseURL string `envconfig:"VISION_BASE_URL" default:"https://api.openai.com"`
	VisionAPIKey  string `envconfig:"VISION_API_KEY" default:""`
	VisionModel   string `envconfig:"VISION_MODEL" default:"gpt-4o-mini"`

	// Outbound call timeouts. Business logic itself carries no timeout;
	// both external calls fail closed into the flagged-record path.
	MediaTimeout   time.Duration `envconfig:"MEDIA_TIMEOUT" default:"15s"`
	ExtractTimeout time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"45s"`

	// Intake behavior
	ConfirmMode      ConfirmMode `envconfig:"CONFIRM_MODE" default:"auto"`
	OpenRegistration bool        `envconfig:"OPEN_REGISTRATION" default:"false"`

	// Reconciliation thresholds (0-100 similarity ratio).
	ProjectMatchThreshold  int `envconfig:"PROJECT_MATCH_THRESHOLD" default:"70"`
	CategoryMatchThreshold int `envconfig:"CATEGORY_MATCH_THRESHOLD" default:"60"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty.
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

	switch c.ConfirmMode {
	case ConfirmAuto, ConfirmManual:
	default:
		return fmt.Errorf("unsupported CONFIRM_MODE: %s", c.ConfirmMode)
	}

	if c.ProjectMatchThreshold < 0 || c.ProjectMatchThreshold > 100 {
		return fmt.Errorf("PROJECT_MATCH_THRESHOLD out of range: %d", c.ProjectMatchThreshold)
	}
	if c.CategoryMatchThreshold < 0 || c.CategoryMatchThreshold > 100 {
		return fmt.Errorf("CATEGORY_MATCH_THRESHOLD out of range: %d", c.CategoryMatchThreshold)
	}
	return nil
}

// New creates a Config by parsing CREWLEDGER_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CREWLEDGER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
