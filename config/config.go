/*
Package config loads deployment configuration from a YAML file.

PURPOSE:
  Everything the original workflow kept as process-wide constants -
  provider credentials, gateway keys, file paths - lives in one explicit
  struct, loaded once and passed into collaborators at construction time.
  Nothing in this repo reads configuration from package-level state.

EXAMPLE (config.yaml):

	provider:
	  client_id: "..."
	  client_secret: "..."
	  auth_code: "..."
	  api_base_url: "https://api.example.eu"
	  token_url: "https://app.example.eu/oauth2/access_token"
	payment:
	  gateway_url: "https://gateway.example.com"
	  api_key: "..."
	rates:
	  path: "rates.csv"
	ledger:
	  backend: "sqlite"          # sqlite | csv
	  path: "payouts.db"
	policy:
	  max_entry_hours: 8
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/payout-engine/engine"
	"github.com/warp/payout-engine/timesheet"
)

type Provider struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthCode     string `yaml:"auth_code"`
	AccessToken  string `yaml:"access_token"`
	RedirectURL  string `yaml:"redirect_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

type Payment struct {
	GatewayURL     string `yaml:"gateway_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Rates struct {
	Path string `yaml:"path"`
}

type Ledger struct {
	Backend string `yaml:"backend"` // sqlite | csv
	Path    string `yaml:"path"`
}

type Policy struct {
	MaxEntryHours int `yaml:"max_entry_hours"`
}

type Config struct {
	Provider Provider `yaml:"provider"`
	Payment  Payment  `yaml:"payment"`
	Rates    Rates    `yaml:"rates"`
	Ledger   Ledger   `yaml:"ledger"`
	Policy   Policy   `yaml:"policy"`
}

// Load reads and validates the configuration file, applying defaults for
// optional fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Rates.Path == "" {
		c.Rates.Path = "rates.csv"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "csv"
	}
	if c.Ledger.Path == "" {
		if c.Ledger.Backend == "sqlite" {
			c.Ledger.Path = "payouts.db"
		} else {
			c.Ledger.Path = "records.csv"
		}
	}
	if c.Policy.MaxEntryHours == 0 {
		c.Policy.MaxEntryHours = 8
	}
}

func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Policy.MaxEntryHours < 0 {
		return fmt.Errorf("config: negative max_entry_hours")
	}
	return nil
}

// Credentials converts provider settings into the timesheet boundary's
// credential struct.
func (p Provider) Credentials() timesheet.Credentials {
	return timesheet.Credentials{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		AuthCode:     p.AuthCode,
		AccessToken:  p.AccessToken,
		RedirectURL:  p.RedirectURL,
		AuthURL:      p.AuthURL,
		TokenURL:     p.TokenURL,
	}
}

// Eligibility returns the engine policy configured by this deployment.
func (c *Config) Eligibility() engine.EligibilityPolicy {
	return engine.EligibilityPolicy{
		MaxEntryDuration: time.Duration(c.Policy.MaxEntryHours) * time.Hour,
	}
}
