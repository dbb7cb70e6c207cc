// Package providers holds the LLM adapters. Every adapter turns a single
// prompt into a plain-text reply and classifies failures into engine kinds.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// Provider names.
const (
	Claude = "claude"
	GPT    = "gpt"
	Gemini = "gemini"
)

// CallOptions tune a single call. Zero values fall back to the adapter's
// defaults.
type CallOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client is one hosted model provider.
type Client interface {
	Name() string
	Call(ctx context.Context, apiKey, prompt string, opts CallOptions) (string, error)
	// TestAPIKey sends a minimal request and reports whether the key works.
	TestAPIKey(ctx context.Context, apiKey string) bool
}

// Options configure an adapter. BaseURL points the adapter at a compatible
// endpoint, mostly for tests and proxies.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

const defaultMaxTokens = 4096

type spec struct {
	model   string
	envKeys []string
	build   func(Options) Client
}

var known = map[string]spec{
	Claude: {model: "claude-3-5-sonnet-20241022", envKeys: []string{"CLAUDE_API_KEY", "ANTHROPIC_API_KEY"}, build: func(o Options) Client { return NewClaude(o) }},
	GPT:    {model: "gpt-4o-mini", envKeys: []string{"GPT_API_KEY", "OPENAI_API_KEY"}, build: func(o Options) Client { return NewGPT(o) }},
	Gemini: {model: "gemini-1.5-flash", envKeys: []string{"GEMINI_API_KEY"}, build: func(o Options) Client { return NewGemini(o) }},
}

// New returns the adapter for a provider name.
func New(name string, opts Options) (Client, error) {
	s, ok := known[strings.ToLower(name)]
	if !ok {
		return nil, engine.Errorf(engine.KindInvalidInput, "unknown provider %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return s.build(opts), nil
}

// Names lists the supported providers.
func Names() []string {
	out := make([]string, 0, len(known))
	for n := range known {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(name string) string {
	return known[strings.ToLower(name)].model
}

// EnvKeys lists the environment variables consulted for a provider's key,
// in order of preference.
func EnvKeys(name string) []string {
	return append([]string(nil), known[strings.ToLower(name)].envKeys...)
}

func model(name string, opts CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return DefaultModel(name)
}

func maxTokens(opts CallOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return defaultMaxTokens
}

// classify attaches the provider and an HTTP status, when the SDK exposed
// one, before mapping err to a kind.
func classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if status > 0 {
		err = fmt.Errorf("status %d: %w", status, err)
	}
	return engine.ClassifyLLMError(provider, err)
}

func requireKey(provider, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return &engine.Error{Kind: engine.KindUpstreamAuth, Op: "call", Provider: provider, Reasons: []string{"no API key configured"}}
	}
	return nil
}

func probe(ctx context.Context, c Client, apiKey string) bool {
	_, err := c.Call(ctx, apiKey, "ping", CallOptions{MaxTokens: 1})
	return err == nil
}
