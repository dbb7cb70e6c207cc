// Package config holds the user's persistent preferences: a YAML file
// addressable by dotted paths and validated on every change.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/providers"
)

// Config is the structured configuration record.
type Config struct {
	DefaultProvider string            `yaml:"defaultProvider" validate:"oneof=claude gpt gemini"`
	DefaultModel    string            `yaml:"defaultModel,omitempty"`
	Timeout         int               `yaml:"timeout" validate:"gte=1000"` // milliseconds
	MaxRetries      int               `yaml:"maxRetries" validate:"gte=0"`
	MaxTokens       int               `yaml:"maxTokens" validate:"gte=1"`
	Temperature     float64           `yaml:"temperature" validate:"gte=0,lte=2"`
	Output          string            `yaml:"output" validate:"oneof=text json markdown"`
	Debug           bool              `yaml:"debug"`
	Trace           bool              `yaml:"trace"`
	DataDir         string            `yaml:"dataDir,omitempty"`
	RetentionDays   int               `yaml:"retentionDays" validate:"gte=1"`
	Context         ContextConfig     `yaml:"context"`
	Agent           AgentConfig       `yaml:"agent"`
	APIKeys         map[string]string `yaml:"apiKeys,omitempty"`
}

// ContextConfig bounds the workspace context sent with every prompt.
type ContextConfig struct {
	MaxContextSize int    `yaml:"maxContextSize" validate:"gte=1000"`
	Retention      string `yaml:"retention" validate:"oneof=importance recency fifo"`
}

// AgentConfig controls action planning and execution.
type AgentConfig struct {
	Enabled             bool         `yaml:"enabled"`
	AutoApprove         bool         `yaml:"autoApprove"`
	ConfirmationEnabled bool         `yaml:"confirmationEnabled"`
	MaxActionsPerPrompt int          `yaml:"maxActionsPerPrompt" validate:"gte=1"`
	MaxIterations       int          `yaml:"maxIterations" validate:"gte=0"` // 0 = derived from effort
	Effort              string       `yaml:"effort" validate:"oneof=low medium high maximum"`
	MaxConcurrent       int          `yaml:"maxConcurrent" validate:"gte=1"`
	ContinueOnError     bool         `yaml:"continueOnError"`
	ToolSecurity        ToolSecurity `yaml:"toolSecurity"`
}

// ToolSecurity is the policy handed to the built-in tools. Empty lists fall
// back to each tool's defaults.
type ToolSecurity struct {
	AllowedCommands   []string `yaml:"allowedCommands,omitempty"`
	BlockedCommands   []string `yaml:"blockedCommands,omitempty"`
	MaxExecutionTime  int      `yaml:"maxExecutionTime" validate:"gte=0"` // milliseconds
	MaxOutputSize     int64    `yaml:"maxOutputSize" validate:"gte=0"`
	AllowedPaths      []string `yaml:"allowedPaths,omitempty"`
	BlockedExtensions []string `yaml:"blockedExtensions,omitempty"`
	MaxFileSize       int64    `yaml:"maxFileSize" validate:"gte=0"`
	AllowedDomains    []string `yaml:"allowedDomains,omitempty"`
	BlockedDomains    []string `yaml:"blockedDomains,omitempty"`
	MaxResponseSize   int64    `yaml:"maxResponseSize" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProvider: providers.Claude,
		Timeout:         60000,
		MaxRetries:      3,
		MaxTokens:       4096,
		Temperature:     0.7,
		Output:          "text",
		RetentionDays:   30,
		Context: ContextConfig{
			MaxContextSize: 50000,
			Retention:      "importance",
		},
		Agent: AgentConfig{
			Enabled:             true,
			ConfirmationEnabled: true,
			MaxActionsPerPrompt: 10,
			Effort:              "medium",
			MaxConcurrent:       3,
			ContinueOnError:     true,
			ToolSecurity: ToolSecurity{
				MaxExecutionTime: 30000,
				MaxOutputSize:    1024 * 1024,
				MaxFileSize:      10 * 1024 * 1024,
				MaxResponseSize:  10 * 1024 * 1024,
			},
		},
	}
}

// APIKey returns the configured key for provider, falling back to the
// provider's environment variables.
func (c *Config) APIKey(provider string) string {
	if k := strings.TrimSpace(c.APIKeys[provider]); k != "" {
		return k
	}
	for _, env := range providers.EnvKeys(provider) {
		if k := strings.TrimSpace(os.Getenv(env)); k != "" {
			return k
		}
	}
	return ""
}

// Model returns the configured model or the provider default.
func (c *Config) Model(provider string) string {
	if c.DefaultModel != "" && provider == c.DefaultProvider {
		return c.DefaultModel
	}
	return providers.DefaultModel(provider)
}

// DebugEnabled reports whether debug output was requested in the file or
// through a truthy DEBUG variable.
func (c *Config) DebugEnabled() bool {
	if c.Debug {
		return true
	}
	v, err := strconv.ParseBool(os.Getenv("DEBUG"))
	return err == nil && v
}

// TimeoutDuration is Timeout as a duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// DataRoot returns DataDir, defaulting next to the config file.
func (c *Config) DataRoot() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName, "data"), nil
}

// Secrets lists every configured key so the logger can redact them.
func (c *Config) Secrets() []string {
	var out []string
	for _, p := range providers.Names() {
		if k := c.APIKey(p); k != "" {
			out = append(out, k)
		}
	}
	return out
}
