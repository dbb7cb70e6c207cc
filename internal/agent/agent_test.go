package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/config"
	"github.com/ChamsBouzaiene/agentcli/internal/conversation"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/project"
	"github.com/ChamsBouzaiene/agentcli/internal/providers"
	"github.com/ChamsBouzaiene/agentcli/internal/reasoning"
)

// MockLLM is a hand-rolled LLM stub.
type MockLLM struct {
	CallFunc func(ctx context.Context, apiKey, prompt string, opts providers.CallOptions) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *MockLLM) Call(ctx context.Context, apiKey, prompt string, opts providers.CallOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.CallFunc(ctx, apiKey, prompt, opts)
}

func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func replies(rs ...string) *MockLLM {
	var mu sync.Mutex
	i := 0
	return &MockLLM{CallFunc: func(context.Context, string, string, providers.CallOptions) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		r := rs[len(rs)-1]
		if i < len(rs) {
			r = rs[i]
		}
		i++
		return r, nil
	}}
}

func newOrchestrator(t *testing.T, llm LLM, mutate func(o *Options)) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		Provider:        providers.Claude,
		APIKey:          "test-key",
		Enabled:         true,
		AutoApprove:     true,
		ContinueOnError: true,
		Dir:             dir,
		DataDir:         t.TempDir(),
		LLM:             llm,
		Console:         io.Discard,
	}
	if mutate != nil {
		mutate(&opts)
	}
	o, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown("completed") })
	return o, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestProcessPrompt_SimpleCreate(t *testing.T) {
	llm := replies("Sure:\n```\nhello world\n```\nTask complete.")
	o, dir := newOrchestrator(t, llm, nil)

	res, err := o.ProcessPrompt(context.Background(), "Create a file called `hello.txt` with hello world", PromptOptions{})
	require.NoError(t, err)
	require.True(t, res.Success, res.Errors)
	require.Len(t, res.Actions, 1)

	a := res.Actions[0]
	assert.Equal(t, engine.ActionCreateFile, a.Action.Type)
	assert.Equal(t, "filesystem", a.Action.Tool)
	assert.Equal(t, "writeFile", a.Action.Method)
	assert.Equal(t, []string{"hello.txt", "hello world"}, a.Action.Params)
	assert.True(t, a.Action.Destructive)
	assert.Equal(t, OutcomeExecuted, a.Status)

	assert.Equal(t, "hello world", readFile(t, filepath.Join(dir, "hello.txt")))
	assert.Equal(t, 1, res.Summary.FilesCreated)
	assert.Equal(t, 1, res.Summary.ActionsPlanned)
	assert.Equal(t, 1, res.Summary.ActionsExecuted)
	assert.Equal(t, engine.StateIdle, o.State())

	conv, err := o.Store().Get(res.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, conversation.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, conversation.RoleAssistant, conv.Messages[1].Role)
	require.Len(t, conv.Actions, 1)
	require.NotNil(t, conv.Actions[0].Outcome)
	assert.True(t, conv.Actions[0].Outcome.Success)
	assert.Len(t, conv.Reasoning, 1)
	assert.Equal(t, 1, conv.Counters.ToolCalls)
	assert.NotEmpty(t, conv.ContextRef)

	// The model saw the tools, the workspace and the request.
	require.Equal(t, 1, llm.Calls())
	assert.Contains(t, llm.prompts[0], "filesystem")
	assert.Contains(t, llm.prompts[0], "<workspace_context>")
	assert.Contains(t, llm.prompts[0], "User request:\nCreate a file called `hello.txt`")
}

func TestProcessPrompt_BlockedCommand(t *testing.T) {
	o, _ := newOrchestrator(t, replies("I can't help with that."), nil)

	res, err := o.ProcessPrompt(context.Background(), "Run `rm -rf /`", PromptOptions{})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)

	a := res.Actions[0]
	assert.Equal(t, engine.ActionRunCommand, a.Action.Type)
	assert.Equal(t, OutcomeInvalid, a.Status)
	assert.Equal(t, engine.KindBlocked, a.Kind)
	assert.Nil(t, a.Record)

	assert.Equal(t, 0, res.Summary.CommandsRun)
	assert.Equal(t, 0, res.Summary.Errors)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "rm -rf")
	assert.False(t, res.Success)
	assert.Empty(t, o.Registry().History(10), "nothing reached the executor")
}

func TestProcessPrompt_MultipleActionsInOrder(t *testing.T) {
	o, dir := newOrchestrator(t, replies("Creating both files."), nil)

	res, err := o.ProcessPrompt(context.Background(), "Create `a.txt`, then create `b.txt`", PromptOptions{})
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, "a.txt", res.Actions[0].Action.Param(0))
	assert.Equal(t, "b.txt", res.Actions[1].Action.Param(0))
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
	assert.FileExists(t, filepath.Join(dir, "b.txt"))
	assert.Equal(t, 2, res.Summary.FilesCreated)

	hist := o.Registry().History(10)
	require.Len(t, hist, 2)
	assert.Equal(t, res.Actions[0].Action.ID, hist[0].ActionID)
	assert.Equal(t, res.Actions[1].Action.ID, hist[1].ActionID)
}

func TestProcessPrompt_OverwriteCountsAsModified(t *testing.T) {
	o, dir := newOrchestrator(t, replies("Update file `notes.txt`:\n```\nnew\n```"), nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("old"), 0644))

	res, err := o.ProcessPrompt(context.Background(), "refresh the notes", PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary.FilesCreated)
	assert.Equal(t, 1, res.Summary.FilesModified)
	assert.Equal(t, "new", readFile(t, filepath.Join(dir, "notes.txt")))
}

func TestProcessPrompt_EmptyPrompt(t *testing.T) {
	llm := replies("unused")
	o, _ := newOrchestrator(t, llm, nil)

	res, err := o.ProcessPrompt(context.Background(), "   ", PromptOptions{})
	assert.Nil(t, res)
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	assert.Equal(t, 0, llm.Calls())
	assert.Equal(t, engine.StateIdle, o.State())
}

func TestProcessPrompt_ConfirmationGate(t *testing.T) {
	var (
		mu    sync.Mutex
		asked []engine.ConfirmationRequest
	)
	confirm := func(_ context.Context, req engine.ConfirmationRequest) bool {
		mu.Lock()
		defer mu.Unlock()
		asked = append(asked, req)
		return false
	}
	o, dir := newOrchestrator(t, replies("ok"), func(opts *Options) {
		opts.AutoApprove = false
		opts.ConfirmationEnabled = true
		opts.Confirm = confirm
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	res, err := o.ProcessPrompt(context.Background(), "read the file notes.txt and then delete the file notes.txt", PromptOptions{})
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)

	byType := map[engine.ActionType]ActionOutcome{}
	for _, a := range res.Actions {
		byType[a.Action.Type] = a
	}
	assert.Equal(t, OutcomeRejected, byType[engine.ActionDeleteFile].Status)
	assert.Equal(t, "declined by user", byType[engine.ActionDeleteFile].Error)
	assert.Equal(t, OutcomeExecuted, byType[engine.ActionReadFile].Status)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	require.Len(t, asked, 1, "only destructive actions ask")
	assert.Equal(t, engine.ActionDeleteFile, asked[0].Action.Type)
	assert.Contains(t, asked[0].Reason, "destructive")
}

func TestProcessPrompt_NoConfirmerRejectsDestructive(t *testing.T) {
	o, dir := newOrchestrator(t, replies("ok"), func(opts *Options) {
		opts.AutoApprove = false
		opts.ConfirmationEnabled = true
	})

	res, err := o.ProcessPrompt(context.Background(), "Create `x.txt`", PromptOptions{})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, OutcomeRejected, res.Actions[0].Status)
	assert.Contains(t, res.Actions[0].Error, "no confirmer")
	assert.NoFileExists(t, filepath.Join(dir, "x.txt"))
}

func TestProcessPrompt_ConfirmationDisabled(t *testing.T) {
	o, dir := newOrchestrator(t, replies("ok"), func(opts *Options) {
		opts.AutoApprove = false
		opts.ConfirmationEnabled = false
	})

	_, err := o.ProcessPrompt(context.Background(), "Create `x.txt`", PromptOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "x.txt"))
}

func TestProcessPrompt_MaxActionsPerPrompt(t *testing.T) {
	o, dir := newOrchestrator(t, replies("ok"), func(opts *Options) {
		opts.MaxActionsPerPrompt = 1
	})

	res, err := o.ProcessPrompt(context.Background(), "Create `a.txt`, then create `b.txt`", PromptOptions{})
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, OutcomeExecuted, res.Actions[0].Status)
	assert.Equal(t, OutcomeDropped, res.Actions[1].Status)
	assert.Contains(t, res.Actions[1].Error, "detected but not executed")
	assert.Equal(t, 2, res.Summary.ActionsPlanned)
	assert.Equal(t, 1, res.Summary.ActionsExecuted)
	assert.NoFileExists(t, filepath.Join(dir, "b.txt"))
}

func TestProcessPrompt_ContinueOnError(t *testing.T) {
	prompt := "delete the file missing.txt, then list the files in src"
	for _, continueOnError := range []bool{true, false} {
		t.Run(fmt.Sprint(continueOnError), func(t *testing.T) {
			o, dir := newOrchestrator(t, replies("ok"), func(opts *Options) {
				opts.ContinueOnError = continueOnError
			})
			require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0755))

			res, err := o.ProcessPrompt(context.Background(), prompt, PromptOptions{})
			require.NoError(t, err)
			require.Len(t, res.Actions, 2)
			assert.Equal(t, engine.ActionDeleteFile, res.Actions[0].Action.Type)
			assert.Equal(t, OutcomeFailed, res.Actions[0].Status)
			assert.Equal(t, engine.KindNotFound, res.Actions[0].Kind)
			assert.Equal(t, 1, res.Summary.Errors)

			if continueOnError {
				assert.Equal(t, OutcomeExecuted, res.Actions[1].Status)
			} else {
				assert.Equal(t, OutcomeSkipped, res.Actions[1].Status)
			}
		})
	}
}

func TestProcessPrompt_AgentDisabledOnlyChats(t *testing.T) {
	llm := replies("Create `a.txt` is what I would do.")
	o, dir := newOrchestrator(t, llm, func(opts *Options) { opts.Enabled = false })

	res, err := o.ProcessPrompt(context.Background(), "Create `a.txt`", PromptOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Actions)
	assert.Equal(t, "Create `a.txt` is what I would do.", res.Reply)
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	assert.NotContains(t, llm.prompts[0], "executeCommand")
}

func TestProcessPrompt_AuthErrorIsNotRetried(t *testing.T) {
	llm := &MockLLM{CallFunc: func(context.Context, string, string, providers.CallOptions) (string, error) {
		return "", errors.New("status 401: invalid api key")
	}}
	o, _ := newOrchestrator(t, llm, func(opts *Options) { opts.MaxRetries = 3 })

	res, err := o.ProcessPrompt(context.Background(), "hello", PromptOptions{})
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindUpstreamAuth))
	assert.Contains(t, err.Error(), "claude")
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, 1, llm.Calls())
	assert.Equal(t, engine.StateError, o.State())

	// The session stays usable.
	llm.CallFunc = func(context.Context, string, string, providers.CallOptions) (string, error) { return "hi", nil }
	res, err = o.ProcessPrompt(context.Background(), "hello again", PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Reply)
	assert.Equal(t, engine.StateIdle, o.State())
}

func TestProcessPrompt_RetriesServerErrors(t *testing.T) {
	fails := 1
	llm := &MockLLM{CallFunc: func(context.Context, string, string, providers.CallOptions) (string, error) {
		if fails > 0 {
			fails--
			return "", errors.New("503 service unavailable")
		}
		return "recovered", nil
	}}
	var retries int
	hook := engine.HookFuncs{LLMRetry: func(context.Context, int, time.Duration, error) { retries++ }}
	o, _ := newOrchestrator(t, llm, func(opts *Options) {
		opts.MaxRetries = 1
		opts.Hooks = []engine.Hook{hook}
	})

	res, err := o.ProcessPrompt(context.Background(), "hello", PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Reply)
	assert.Equal(t, 2, llm.Calls())
	assert.Equal(t, 1, retries)
}

func TestProcessPrompt_CallOptions(t *testing.T) {
	var got providers.CallOptions
	var key string
	llm := &MockLLM{CallFunc: func(_ context.Context, apiKey, _ string, opts providers.CallOptions) (string, error) {
		got, key = opts, apiKey
		return "ok", nil
	}}
	o, _ := newOrchestrator(t, llm, func(opts *Options) {
		opts.Model = "m1"
		opts.MaxTokens = 64
		opts.Temperature = 0.3
	})
	_, err := o.ProcessPrompt(context.Background(), "hi", PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, providers.CallOptions{Model: "m1", MaxTokens: 64, Temperature: 0.3}, got)
	assert.Equal(t, "test-key", key)
}

func TestProcessPrompt_FollowUpsShareConversation(t *testing.T) {
	llm := replies("first", "second")
	o, _ := newOrchestrator(t, llm, nil)

	r1, err := o.ProcessPrompt(context.Background(), "one", PromptOptions{})
	require.NoError(t, err)
	r2, err := o.ProcessPrompt(context.Background(), "two", PromptOptions{})
	require.NoError(t, err)
	assert.Equal(t, r1.ConversationID, r2.ConversationID)

	conv, err := o.Store().Get(r1.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	assert.Contains(t, llm.prompts[1], "first", "earlier turns feed the context")

	require.NoError(t, o.NewConversation("user reset"))
	r3, err := o.ProcessPrompt(context.Background(), "three", PromptOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, r1.ConversationID, r3.ConversationID)
}

func TestAutonomousSession_StopsOnCompletion(t *testing.T) {
	llm := replies(
		"Create `step1.txt`:\n```\n1\n```",
		"Create `step2.txt`:\n```\n2\n```",
		"Create `step3.txt`:\n```\n3\n```\nTask complete.",
		"Create `step4.txt`:\n```\n4\n```",
	)
	o, dir := newOrchestrator(t, llm, nil)

	var seen []int
	res, err := o.StartAutonomousSession(context.Background(), "write three step files", AutoOptions{
		MaxIterations: 5,
		OnIteration:   func(i int, _ *Result) { seen = append(seen, i) },
	})
	require.NoError(t, err)
	assert.Equal(t, StopComplete, res.StopReason)
	assert.Equal(t, 3, res.Summary.Iterations)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, res.Summary.FilesCreated)
	assert.Equal(t, 3, llm.Calls())
	assert.NoFileExists(t, filepath.Join(dir, "step4.txt"))

	assert.Contains(t, llm.prompts[1], "actions executed: 1, errors: 0")
	assert.Contains(t, llm.prompts[2], "write three step files")
}

func TestAutonomousSession_StopsWithoutActions(t *testing.T) {
	o, _ := newOrchestrator(t, replies("Create `a.txt`", "Nothing more to add."), nil)

	res, err := o.StartAutonomousSession(context.Background(), "go", AutoOptions{MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, StopNoActions, res.StopReason)
	assert.Equal(t, 2, res.Summary.Iterations)
}

func TestAutonomousSession_MaxIterations(t *testing.T) {
	llm := &MockLLM{}
	n := 0
	llm.CallFunc = func(context.Context, string, string, providers.CallOptions) (string, error) {
		n++
		return fmt.Sprintf("Create `f%d.txt`", n), nil
	}
	o, _ := newOrchestrator(t, llm, nil)

	res, err := o.StartAutonomousSession(context.Background(), "keep going", AutoOptions{Effort: reasoning.EffortLow})
	require.NoError(t, err)
	assert.Equal(t, StopMaxIterations, res.StopReason)
	assert.Equal(t, reasoning.EffortLow.MaxIterations(), res.Summary.Iterations)
}

func TestAutonomousSession_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &MockLLM{CallFunc: func(context.Context, string, string, providers.CallOptions) (string, error) {
		cancel()
		return "Create `a.txt`", nil
	}}
	o, _ := newOrchestrator(t, llm, nil)

	res, _ := o.StartAutonomousSession(ctx, "go", AutoOptions{MaxIterations: 5})
	require.NotNil(t, res)
	assert.Equal(t, StopInterrupted, res.StopReason)
	assert.Equal(t, 1, llm.Calls())
}

func TestShutdown(t *testing.T) {
	o, _ := newOrchestrator(t, replies("hi"), nil)
	res, err := o.ProcessPrompt(context.Background(), "hello", PromptOptions{})
	require.NoError(t, err)

	require.NoError(t, o.Shutdown(conversation.ReasonShutdown))
	require.NoError(t, o.Shutdown(conversation.ReasonShutdown), "idempotent")
	assert.Equal(t, engine.StateShutdown, o.State())

	conv, err := o.Store().Get(res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusShutdown, conv.Status)

	sessionDir := filepath.Join(o.opts.DataDir, "sessions", o.SessionID())
	assert.FileExists(t, filepath.Join(sessionDir, "session.log"))
	assert.FileExists(t, filepath.Join(sessionDir, "metrics.json"))
	assert.FileExists(t, filepath.Join(sessionDir, "metrics.prom"))

	_, err = o.ProcessPrompt(context.Background(), "more", PromptOptions{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	o, _ := newOrchestrator(t, replies("hi"), nil)
	st := o.Status()
	assert.Equal(t, engine.StateIdle, st.State)
	assert.Equal(t, o.SessionID(), st.SessionID)
	assert.Equal(t, []string{"analysis", "exec", "filesystem", "network"}, st.Registry.Tools)
	assert.Empty(t, st.ConversationID)
}

func TestNew_RequiresDataDir(t *testing.T) {
	_, err := New(Options{LLM: replies("x")})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
}

func TestOptionsFromConfig(t *testing.T) {
	t.Setenv("GPT_API_KEY", "env-key")
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.Set("agent.effort", "high"))
	require.NoError(t, cfg.Set("agent.toolSecurity.allowedCommands", "git,go"))
	require.NoError(t, cfg.Set("agent.toolSecurity.maxExecutionTime", "5000"))

	opts, err := OptionsFromConfig(cfg, "gpt")
	require.NoError(t, err)
	assert.Equal(t, "gpt", opts.Provider)
	assert.Equal(t, "env-key", opts.APIKey)
	assert.Equal(t, "gpt-4o-mini", opts.Model)
	assert.Equal(t, reasoning.EffortHigh, opts.Effort)
	assert.Equal(t, []string{"git", "go"}, opts.Exec.AllowedCommands)
	assert.Equal(t, 5*time.Second, opts.ActionTimeout)
	assert.Equal(t, 60*time.Second, opts.Timeout)
	assert.Equal(t, cfg.DataDir, opts.DataDir)
	assert.True(t, opts.ContinueOnError)

	def := DefaultOptions()
	assert.Equal(t, providers.Claude, def.Provider)
	assert.Equal(t, 10, def.MaxActionsPerPrompt)
}

func TestProcessPrompt_ProjectRules(t *testing.T) {
	llm := replies("ok")
	o, dir := newOrchestrator(t, llm, nil)
	require.NoError(t, project.SaveRules(dir, "Always answer in French."))

	_, err := o.ProcessPrompt(context.Background(), "hello", PromptOptions{})
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[0], "Project rules:\nAlways answer in French.")
}
