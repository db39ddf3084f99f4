// Package config provides configuration loading for checkin.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then CHECKIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"
)

// Config holds the complete checkin configuration.
type Config struct {
	Remote    RemoteConfig    `koanf:"remote"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	Policies  PoliciesConfig  `koanf:"policies"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// RemoteConfig holds the changeset server the CLI submits to.
type RemoteConfig struct {
	URL     string   `koanf:"url"`
	Timeout Duration `koanf:"timeout"`
}

// WorkspaceConfig holds local working copy settings.
type WorkspaceConfig struct {
	Path string `koanf:"path"`
}

// PoliciesConfig configures the built-in checkin policies.
// Policies run in the order listed in Order; unknown names are rejected.
type PoliciesConfig struct {
	Order            []string      `koanf:"order"`
	RequireWorkItems bool          `koanf:"require_work_items"`
	RequireComment   bool          `koanf:"require_comment"`
	RequiredNotes    []string      `koanf:"required_notes"`
	MaxChanges       int           `koanf:"max_changes"`
	ForbiddenPaths   []string      `koanf:"forbidden_paths"`
	Exclude          []string      `koanf:"exclude"`
	Secrets          SecretsConfig `koanf:"secrets"`
}

// SecretsConfig configures the gitleaks-backed secrets policy.
type SecretsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Allowlist string `koanf:"allowlist"`
}

// ServerConfig holds changeset server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	RateLimit       float64  `koanf:"rate_limit"`
	Burst           int      `koanf:"burst"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// DefaultPolicyOrder is the evaluation order used when none is configured.
var DefaultPolicyOrder = []string{
	"checkin-notes",
	"work-items",
	"comment",
	"max-changes",
	"forbidden-paths",
	"secrets",
}

// NewDefaultConfig returns config with defaults applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - the remote URL is not an absolute http(s) URL
//   - server port is not between 1 and 65535
//   - a policy name in the order is unknown or repeated
//   - an exclude or forbidden path pattern is malformed
//   - logging format is not json or console
func (c *Config) Validate() error {
	u, err := url.Parse(c.Remote.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid remote url: %q (must be http:// or https://)", c.Remote.URL)
	}
	if c.Remote.Timeout.Duration() <= 0 {
		return errors.New("remote timeout must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server rate_limit must be >= 0, got %v", c.Server.RateLimit)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	seen := make(map[string]bool, len(c.Policies.Order))
	for _, name := range c.Policies.Order {
		if !isKnownPolicy(name) {
			return fmt.Errorf("unknown policy %q in policies.order", name)
		}
		if seen[name] {
			return fmt.Errorf("policy %q listed twice in policies.order", name)
		}
		seen[name] = true
	}
	if c.Policies.MaxChanges < 0 {
		return fmt.Errorf("policies.max_changes must be >= 0, got %d", c.Policies.MaxChanges)
	}
	for _, p := range append(append([]string{}, c.Policies.Exclude...), c.Policies.ForbiddenPaths...) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}

	return nil
}

func isKnownPolicy(name string) bool {
	for _, known := range DefaultPolicyOrder {
		if name == known {
			return true
		}
	}
	return false
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Remote.URL == "" {
		cfg.Remote.URL = "http://localhost:8765"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = Duration(30 * time.Second)
	}

	if cfg.Workspace.Path == "" {
		cfg.Workspace.Path = "."
	}

	if len(cfg.Policies.Order) == 0 {
		cfg.Policies.Order = append([]string(nil), DefaultPolicyOrder...)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "http/protobuf"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "checkin"
	}
}
