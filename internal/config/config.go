// Package config provides layered configuration loading for the poller:
// defaults, then an optional YAML file, then an optional .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL     = "https://api.mail.tm"
	defaultTimeout     = 30 * time.Second
	defaultInterval    = 60 * time.Second
	defaultRetryBudget = 600 * time.Second
)

// Config holds the complete application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Account AccountConfig `yaml:"account"`
	Poll    PollConfig    `yaml:"poll"`
	Sink    SinkConfig    `yaml:"sink"`
	SES     SESConfig     `yaml:"ses"`
	Graph   GraphConfig   `yaml:"graph"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig locates the mail.tm API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"MAILTM_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"MAILTM_TIMEOUT"`
}

// AccountConfig identifies the mailbox being watched.
type AccountConfig struct {
	ID       string `yaml:"id" env:"MAILTM_ACCOUNT_ID"`
	Address  string `yaml:"address" env:"MAILTM_ADDRESS"`
	Password string `yaml:"password" env:"MAILTM_PASSWORD"`
	Token    string `yaml:"token" env:"MAILTM_TOKEN"`
}

// PollConfig controls the polling loop.
type PollConfig struct {
	Interval        time.Duration `yaml:"interval" env:"POLL_INTERVAL"`
	RetryBudget     time.Duration `yaml:"retry_budget" env:"POLL_RETRY_BUDGET"`
	ContinueOnError bool          `yaml:"continue_on_error" env:"POLL_CONTINUE_ON_ERROR"`
}

// SinkConfig selects where new messages are reported.
type SinkConfig struct {
	Type      string   `yaml:"type" env:"SINK"`
	Format    string   `yaml:"format" env:"SINK_FORMAT"`
	ForwardTo []string `yaml:"forward_to" env:"SINK_FORWARD_TO" envSeparator:","`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region" env:"SES_REGION"`
	AccessKeyID     string `yaml:"access_key_id" env:"SES_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SES_SECRET_ACCESS_KEY"`
	Sender          string `yaml:"sender" env:"SES_SENDER"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id" env:"GRAPH_TENANT_ID"`
	ClientID     string `yaml:"client_id" env:"GRAPH_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GRAPH_CLIENT_SECRET"`
	Sender       string `yaml:"sender" env:"GRAPH_SENDER"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Load loads configuration from defaults and the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings needed by command are present.
func (c *Config) Validate(command string) error {
	if c.API.BaseURL == "" {
		return errors.New("api base_url must not be empty")
	}

	if command != "watch" {
		return nil
	}

	if c.Account.Token == "" {
		return errors.New("watch requires an account token (MAILTM_TOKEN)")
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll interval must not be negative: %s", c.Poll.Interval)
	}

	switch c.Sink.Type {
	case "stdout":
	case "ses":
		if !c.SESConfigured() {
			return errors.New("ses sink requires SES_REGION and SES_SENDER")
		}
		if len(c.Sink.ForwardTo) == 0 {
			return errors.New("ses sink requires SINK_FORWARD_TO")
		}
	case "graph":
		if !c.GraphConfigured() {
			return errors.New("graph sink requires GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_SENDER")
		}
		if len(c.Sink.ForwardTo) == 0 {
			return errors.New("graph sink requires SINK_FORWARD_TO")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink.Type)
	}
	return nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SESConfigured returns true if region and sender are set. Credentials may
// come from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

func (c *Config) applyDefaults() {
	c.API.BaseURL = defaultBaseURL
	c.API.Timeout = defaultTimeout
	c.Poll.Interval = defaultInterval
	c.Poll.RetryBudget = defaultRetryBudget
	c.Sink.Type = "stdout"
	c.Sink.Format = "json"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with a .env file, when present, and
// the process environment. Unset or empty variables keep existing values.
func (c *Config) applyEnvVars() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("unable to load .env file", "error", err)
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	c.Sink.Type = strings.ToLower(strings.TrimSpace(c.Sink.Type))
	c.Sink.Format = strings.ToLower(strings.TrimSpace(c.Sink.Format))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")

	forwardTo := make([]string, 0, len(c.Sink.ForwardTo))
	for _, addr := range c.Sink.ForwardTo {
		if addr = strings.TrimSpace(addr); addr != "" {
			forwardTo = append(forwardTo, addr)
		}
	}
	c.Sink.ForwardTo = forwardTo
	return nil
}
