// Package agent wires the core pieces into a session: a core agent that owns
// state, conversation and tools, and an orchestrator that adds context and
// reasoning on top of it.
package agent

import (
	"context"
	"io"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/config"
	"github.com/ChamsBouzaiene/agentcli/internal/contextbuilder"
	"github.com/ChamsBouzaiene/agentcli/internal/conversation"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
	"github.com/ChamsBouzaiene/agentcli/internal/prompts"
	"github.com/ChamsBouzaiene/agentcli/internal/providers"
	"github.com/ChamsBouzaiene/agentcli/internal/reasoning"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/execution"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/network"
)

// LLM is the model adapter the orchestrator calls. providers.Client
// satisfies it.
type LLM interface {
	Call(ctx context.Context, apiKey, prompt string, opts providers.CallOptions) (string, error)
}

// Options is the validated session record. Unset numeric fields fall back to
// DefaultOptions.
type Options struct {
	Provider    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration // per LLM call
	MaxRetries  int
	Effort      reasoning.Effort

	Enabled             bool // extract and execute actions; false only chats
	AutoApprove         bool
	ConfirmationEnabled bool
	MaxActionsPerPrompt int
	MaxIterations       int // autonomous loop cap; 0 derives it from Effort
	ContinueOnError     bool
	MaxConcurrent       int
	ActionTimeout       time.Duration

	Debug bool
	Trace bool

	Dir            string // working directory
	DataDir        string // holds sessions/<id>/
	MaxContextSize int
	Retention      contextbuilder.Retention
	RetentionDays  int

	Filesystem filesystem.Policy
	Exec       execution.Policy
	Network    network.Policy
	Secrets    []string

	// Collaborators. Nil ones are built from the fields above.
	LLM        LLM
	Confirm    engine.Confirmer
	Hooks      []engine.Hook
	ExecOutput execution.OutputFunc
	Console    io.Writer
	Logger     *logging.Logger
	Registry   *registry.Registry
	Store      *conversation.Store
	Builder    *contextbuilder.Builder
	Reasoner   *reasoning.Reasoner
	Prompts    *prompts.Registry
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	o, _ := OptionsFromConfig(config.Default(), "")
	return o
}

// OptionsFromConfig translates the persisted configuration. An empty
// provider selects cfg.DefaultProvider.
func OptionsFromConfig(cfg *config.Config, provider string) (Options, error) {
	if provider == "" {
		provider = cfg.DefaultProvider
	}
	effort, err := reasoning.ParseEffort(cfg.Agent.Effort)
	if err != nil {
		return Options{}, err
	}
	retention, err := contextbuilder.ParseRetention(cfg.Context.Retention)
	if err != nil {
		return Options{}, err
	}
	dataDir, err := cfg.DataRoot()
	if err != nil {
		return Options{}, err
	}
	ts := cfg.Agent.ToolSecurity
	return Options{
		Provider:            provider,
		APIKey:              cfg.APIKey(provider),
		Model:               cfg.Model(provider),
		MaxTokens:           cfg.MaxTokens,
		Temperature:         cfg.Temperature,
		Timeout:             cfg.TimeoutDuration(),
		MaxRetries:          cfg.MaxRetries,
		Effort:              effort,
		Enabled:             cfg.Agent.Enabled,
		AutoApprove:         cfg.Agent.AutoApprove,
		ConfirmationEnabled: cfg.Agent.ConfirmationEnabled,
		MaxActionsPerPrompt: cfg.Agent.MaxActionsPerPrompt,
		MaxIterations:       cfg.Agent.MaxIterations,
		ContinueOnError:     cfg.Agent.ContinueOnError,
		MaxConcurrent:       cfg.Agent.MaxConcurrent,
		ActionTimeout:       time.Duration(ts.MaxExecutionTime) * time.Millisecond,
		Debug:               cfg.DebugEnabled(),
		Trace:               cfg.Trace,
		DataDir:             dataDir,
		MaxContextSize:      cfg.Context.MaxContextSize,
		Retention:           retention,
		RetentionDays:       cfg.RetentionDays,
		Filesystem: filesystem.Policy{
			AllowedRoots:      ts.AllowedPaths,
			BlockedExtensions: ts.BlockedExtensions,
			MaxFileSize:       ts.MaxFileSize,
		},
		Exec: execution.Policy{
			AllowedCommands:  ts.AllowedCommands,
			BlockedCommands:  ts.BlockedCommands,
			MaxExecutionTime: time.Duration(ts.MaxExecutionTime) * time.Millisecond,
			MaxOutputSize:    ts.MaxOutputSize,
		},
		Network: network.Policy{
			AllowedDomains:  ts.AllowedDomains,
			BlockedDomains:  ts.BlockedDomains,
			MaxResponseSize: ts.MaxResponseSize,
		},
		Secrets: cfg.Secrets(),
	}, nil
}

func (o *Options) applyDefaults() {
	if o.Effort == "" {
		o.Effort = reasoning.EffortMedium
	}
	if o.MaxActionsPerPrompt <= 0 {
		o.MaxActionsPerPrompt = 10
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 30
	}
}

func (o Options) callOptions() providers.CallOptions {
	return providers.CallOptions{Model: o.Model, MaxTokens: o.MaxTokens, Temperature: o.Temperature}
}
