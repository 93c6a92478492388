package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const FileName = "teamportal.yml"

// Config models teamportal.yml.
type Config struct {
	Organization struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
		Language string `yaml:"language"`
	} `yaml:"organization"`
	Rollup struct {
		MaxDepth   int `yaml:"max_depth"`
		CASRetries int `yaml:"cas_retries"`
	} `yaml:"rollup"`
	Escalation struct {
		ManagerAfterDays int `yaml:"manager_after_days"`
		UrgentAfterDays  int `yaml:"urgent_after_days"`
	} `yaml:"escalation"`
	Schedule struct {
		Overdue    string   `yaml:"overdue"`
		Analytics  string   `yaml:"analytics"`
		JobTimeout Duration `yaml:"job_timeout"`
	} `yaml:"schedule"`
	Analytics struct {
		Snapshots struct {
			Enabled bool   `yaml:"enabled"`
			Prefix  string `yaml:"prefix"`
		} `yaml:"snapshots"`
	} `yaml:"analytics"`
}

// Duration lets yaml carry values like "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Organization.Timezone); err != nil {
		return fmt.Errorf("config.organization.timezone %q is invalid: %w", c.Organization.Timezone, err)
	}
	if _, err := language.Parse(c.Organization.Language); err != nil {
		return fmt.Errorf("config.organization.language %q is invalid", c.Organization.Language)
	}
	if c.Rollup.MaxDepth <= 0 {
		return fmt.Errorf("config.rollup.max_depth must be positive")
	}
	if c.Rollup.CASRetries <= 0 {
		return fmt.Errorf("config.rollup.cas_retries must be positive")
	}
	if c.Escalation.ManagerAfterDays < 0 {
		return fmt.Errorf("config.escalation.manager_after_days must not be negative")
	}
	if c.Escalation.UrgentAfterDays < c.Escalation.ManagerAfterDays {
		return fmt.Errorf("config.escalation.urgent_after_days must be >= manager_after_days")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if c.Schedule.Overdue != "" {
		if _, err := parser.Parse(c.Schedule.Overdue); err != nil {
			return fmt.Errorf("config.schedule.overdue: %w", err)
		}
	}
	if c.Schedule.Analytics != "" {
		if _, err := parser.Parse(c.Schedule.Analytics); err != nil {
			return fmt.Errorf("config.schedule.analytics: %w", err)
		}
	}
	if c.Schedule.JobTimeout.Duration < 0 {
		return fmt.Errorf("config.schedule.job_timeout must not be negative")
	}
	return nil
}

// Location returns the organization's time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Organization.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgName string) string {
	return fmt.Sprintf(defaultTemplate, orgName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("default"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys left out
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `organization:
  name: %s
  timezone: UTC
  language: en

rollup:
  # ancestors walked before the hierarchy is reported as corrupt
  max_depth: 32
  cas_retries: 3

escalation:
  manager_after_days: 3
  urgent_after_days: 7

schedule:
  overdue: "0 6 * * *"
  analytics: "@hourly"
  job_timeout: 5m

analytics:
  snapshots:
    enabled: false
    prefix: analytics
`
