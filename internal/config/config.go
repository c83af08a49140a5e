// Package config handles configuration loading and management for claimflow.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/viper"

	"github.com/clearlane/claimflow/internal/backend"
	"github.com/clearlane/claimflow/internal/runner"
)

// Config holds all configuration for claimflow.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Agents    AgentsConfig    `mapstructure:"agents"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	UseAWSBedrock bool          `mapstructure:"use_aws_bedrock"`
	AWSRegion     string        `mapstructure:"aws_region"`
	AWSProfile    string        `mapstructure:"aws_profile"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	PaceInterval  time.Duration `mapstructure:"pace_interval"`
	MaxTokens     int64         `mapstructure:"max_tokens"`
}

// WorkflowConfig holds claim-processing settings.
type WorkflowConfig struct {
	// MaxInFlight caps the number of concurrently running agents per claim.
	// Zero means no cap.
	MaxInFlight int `mapstructure:"max_in_flight"`
	// ClaimTimeout bounds the first evaluation stage of a claim.
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	// MaxSteps is the per-agent tool-call step limit.
	MaxSteps int `mapstructure:"max_steps"`
	// MaxAttempts is the retry budget for transient provider failures.
	MaxAttempts int `mapstructure:"max_attempts"`
	// MalformedAttempts is the smaller retry budget for malformed verdicts.
	MalformedAttempts int `mapstructure:"malformed_attempts"`
	// BackoffBase is the base delay for exponential retry backoff.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// AgentsConfig holds agent definition settings.
type AgentsConfig struct {
	// Dir is the directory containing per-agent YAML definitions and prompts.
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Explicit config file (CLAIMFLOW_CONFIG)
// 2. Environment variables (ANTHROPIC_API_KEY)
// 3. Project config (.claimflow.yaml in current directory or parent)
// 4. User config (~/.config/claimflow/config.yaml)
// 5. Built-in defaults
func Load() (*Config, error) {
	if path := os.Getenv("CLAIMFLOW_CONFIG"); path != "" {
		return LoadFromPath(path)
	}

	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_aws_bedrock", "CLAIMFLOW_USE_BEDROCK")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// BackendConfig converts the Anthropic section into backend settings.
func (c *Config) BackendConfig() backend.AnthropicConfig {
	return backend.AnthropicConfig{
		Model:         anthropic.Model(c.Anthropic.Model),
		APIKey:        c.Anthropic.APIKey,
		UseAWSBedrock: c.Anthropic.UseAWSBedrock,
		AWSRegion:     c.Anthropic.AWSRegion,
		AWSProfile:    c.Anthropic.AWSProfile,
		CallTimeout:   c.Anthropic.CallTimeout,
		PaceInterval:  c.Anthropic.PaceInterval,
		MaxTokens:     c.Anthropic.MaxTokens,
	}
}

// Policy converts the Workflow section into a per-agent execution policy.
func (c *Config) Policy() runner.Policy {
	return runner.Policy{
		MaxSteps:          c.Workflow.MaxSteps,
		MaxAttempts:       c.Workflow.MaxAttempts,
		MalformedAttempts: c.Workflow.MalformedAttempts,
		BackoffBase:       c.Workflow.BackoffBase,
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.call_timeout", "60s")
	v.SetDefault("anthropic.pace_interval", "500ms")
	v.SetDefault("anthropic.max_tokens", 1024)

	// Workflow defaults
	v.SetDefault("workflow.max_in_flight", 0)
	v.SetDefault("workflow.claim_timeout", "5m")
	v.SetDefault("workflow.max_steps", 10)
	v.SetDefault("workflow.max_attempts", 3)
	v.SetDefault("workflow.malformed_attempts", 2)
	v.SetDefault("workflow.backoff_base", "500ms")

	// Audit defaults
	v.SetDefault("audit.db_path", "")

	// Agent definition defaults
	v.SetDefault("agents.dir", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:        "claude-sonnet-4-20250514",
			CallTimeout:  60 * time.Second,
			PaceInterval: 500 * time.Millisecond,
			MaxTokens:    1024,
		},
		Workflow: WorkflowConfig{
			ClaimTimeout:      5 * time.Minute,
			MaxSteps:          10,
			MaxAttempts:       3,
			MalformedAttempts: 2,
			BackoffBase:       500 * time.Millisecond,
		},
	}
}

// getUserConfigDir returns the XDG config directory for claimflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "claimflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "claimflow")
	}
	return filepath.Join(home, ".config", "claimflow")
}

// findProjectConfig searches for .claimflow.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".claimflow.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
