package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "claude", cfg.DefaultProvider)
	assert.Equal(t, 50000, cfg.Context.MaxContextSize)
	assert.True(t, cfg.Agent.ContinueOnError)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.DefaultProvider = "llama"
	cfg.Timeout = 999
	cfg.MaxRetries = -1
	cfg.Output = "html"
	cfg.Agent.MaxActionsPerPrompt = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	var e *engine.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Reasons, 5)
	assert.Contains(t, err.Error(), "defaultProvider must be one of [claude gpt gemini]")
	assert.Contains(t, err.Error(), "agent.maxActionsPerPrompt must be >= 1")
	assert.Contains(t, err.Error(), "timeout must be >= 1000")
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("agent.effort")
	require.NoError(t, err)
	assert.Equal(t, "medium", v)

	require.NoError(t, cfg.Set("agent.effort", "high"))
	assert.Equal(t, "high", cfg.Agent.Effort)

	require.NoError(t, cfg.Set("agent.autoApprove", "true"))
	assert.True(t, cfg.Agent.AutoApprove)

	require.NoError(t, cfg.Set("temperature", "0.2"))
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-9)

	require.NoError(t, cfg.Set("agent.toolSecurity.allowedCommands", "git, go ,npm"))
	assert.Equal(t, []string{"git", "go", "npm"}, cfg.Agent.ToolSecurity.AllowedCommands)
	assert.Equal(t, "git,go,npm", FormatValue(cfg.Agent.ToolSecurity.AllowedCommands))

	require.NoError(t, cfg.Set("apiKeys.gpt", "sk-test"))
	v, err = cfg.Get("apiKeys.gpt")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", v)
	v, err = cfg.Get("apiKeys.gemini")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, cfg.Set("apiKeys.gpt", ""))
	assert.NotContains(t, cfg.APIKeys, "gpt")
}

func TestSet_Errors(t *testing.T) {
	cfg := Default()

	assert.True(t, engine.IsKind(cfg.Set("nope", "1"), engine.KindInvalidInput))
	assert.Error(t, cfg.Set("agent.nope", "1"))
	assert.Error(t, cfg.Set("agent", "1"))
	assert.Error(t, cfg.Set("maxRetries", "many"))
	assert.Error(t, cfg.Set("apiKeys.gpt.extra", "x"))

	err := cfg.Set("timeout", "10")
	assert.Error(t, err)
	assert.Equal(t, 60000, cfg.Timeout, "invalid changes are rolled back")

	require.NoError(t, cfg.Set("agent.toolSecurity.blockedDomains", "evil.test"))
	assert.Error(t, cfg.Set("agent.effort", "extreme"))
	assert.Equal(t, []string{"evil.test"}, cfg.Agent.ToolSecurity.BlockedDomains)
}

func TestKeys(t *testing.T) {
	cfg := Default()
	cfg.APIKeys = map[string]string{"claude": "x"}
	keys := cfg.Keys()
	assert.Contains(t, keys, "agent.toolSecurity.maxFileSize")
	assert.Contains(t, keys, "context.retention")
	assert.Contains(t, keys, "apiKeys.claude")
	assert.IsIncreasing(t, keys)
}

func TestManager_LoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.False(t, m.Exists())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, cfg.Set("defaultProvider", "gemini"))
	require.NoError(t, cfg.Set("agent.maxIterations", "4"))
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.Exists())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestManager_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaultProvider: gpt\nagent:\n  effort: low\n"), 0600))

	m, _ := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt", cfg.DefaultProvider)
	assert.Equal(t, "low", cfg.Agent.Effort)
	assert.Equal(t, 10, cfg.Agent.MaxActionsPerPrompt)

	require.NoError(t, os.WriteFile(path, []byte("timeout: 5\n"), 0600))
	_, err = m.Load()
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))

	require.NoError(t, os.WriteFile(path, []byte("timeout: [\n"), 0600))
	_, err = m.Load()
	assert.Error(t, err)
}

func TestAPIKey_EnvFallback(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	cfg := Default()
	assert.Equal(t, "from-env", cfg.APIKey("claude"))

	cfg.APIKeys = map[string]string{"claude": "from-file"}
	assert.Equal(t, "from-file", cfg.APIKey("claude"))
	assert.Contains(t, cfg.Secrets(), "from-file")

	t.Setenv("GEMINI_API_KEY", "")
	assert.Empty(t, cfg.APIKey("gemini"))
}

func TestModelAndDebug(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Model("claude"))
	cfg.DefaultModel = "claude-custom"
	assert.Equal(t, "claude-custom", cfg.Model("claude"))
	assert.Equal(t, "gpt-4o-mini", cfg.Model("gpt"))

	t.Setenv("DEBUG", "1")
	assert.True(t, cfg.DebugEnabled())
	t.Setenv("DEBUG", "nah")
	assert.False(t, cfg.DebugEnabled())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("AGENTCLI_TEST_VALUE=hello\n"), 0600))
	t.Setenv("AGENTCLI_TEST_VALUE", "")
	os.Unsetenv("AGENTCLI_TEST_VALUE")

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), env))
	assert.Equal(t, "hello", os.Getenv("AGENTCLI_TEST_VALUE"))
}
