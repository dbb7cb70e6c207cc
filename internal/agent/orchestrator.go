package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/contextbuilder"
	"github.com/ChamsBouzaiene/agentcli/internal/conversation"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
	"github.com/ChamsBouzaiene/agentcli/internal/project"
	"github.com/ChamsBouzaiene/agentcli/internal/prompts"
	"github.com/ChamsBouzaiene/agentcli/internal/providers"
	"github.com/ChamsBouzaiene/agentcli/internal/reasoning"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
	"github.com/ChamsBouzaiene/agentcli/internal/tools"
)

// Orchestrator runs prompts end to end: context, model call, reasoning,
// validation, confirmation, execution and persistence.
type Orchestrator struct {
	*Core

	llm      LLM
	builder  *contextbuilder.Builder
	reasoner *reasoning.Reasoner
	prompts  *prompts.Registry
}

// New builds a session from opts.
func New(opts Options) (*Orchestrator, error) {
	opts.applyDefaults()
	if opts.DataDir == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "data directory is required")
	}

	sessionID := uuid.NewString()
	sessionsDir := filepath.Join(opts.DataDir, "sessions")
	dir := filepath.Join(sessionsDir, sessionID)

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Dir:       dir,
			SessionID: sessionID,
			Debug:     opts.Debug,
			Trace:     opts.Trace,
			Console:   opts.Console,
			Secrets:   append(append([]string(nil), opts.Secrets...), opts.APIKey),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	hooks := append(engine.Hooks{logHook{logger: logger}}, opts.Hooks...)

	reg := opts.Registry
	if reg == nil {
		var err error
		reg, err = tools.NewDefaultRegistry(tools.Options{
			Dir:        opts.Dir,
			Set:        tools.AllTools(),
			Filesystem: opts.Filesystem,
			Exec:       opts.Exec,
			Network:    opts.Network,
			ExecOutput: opts.ExecOutput,
			Registry: registry.Options{
				Timeout:       opts.ActionTimeout,
				MaxConcurrent: opts.MaxConcurrent,
				Logger:        logger,
				Hooks:         hooks,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = conversation.Open(conversation.Options{Dir: sessionsDir, SessionID: sessionID, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	builder := opts.Builder
	if builder == nil {
		builder = contextbuilder.New(contextbuilder.Options{
			Root:           opts.Dir,
			MaxContextSize: opts.MaxContextSize,
			Retention:      opts.Retention,
			Logger:         logger,
		})
	}

	reasoner := opts.Reasoner
	if reasoner == nil {
		reasoner = reasoning.New(reasoning.Options{Hook: hooks, Logger: logger})
	}

	llm := opts.LLM
	if llm == nil {
		client, err := providers.New(opts.Provider, providers.Options{})
		if err != nil {
			return nil, err
		}
		llm = client
	}

	promptReg := opts.Prompts
	if promptReg == nil {
		promptReg = prompts.Default()
	}

	logger.AddMetricsSource("registry", func() any { return reg.Metrics().Snapshot() })
	logger.AddMetricsSource("context_cache", func() any { return builder.CacheStats() })
	logger.Event("session.start",
		zap.String("provider", opts.Provider),
		zap.String("model", opts.Model),
		zap.String("effort", string(opts.Effort)),
		zap.Bool("agent", opts.Enabled))

	return &Orchestrator{
		Core: &Core{
			opts:      opts,
			sessionID: sessionID,
			dir:       dir,
			started:   time.Now(),
			state:     engine.NewStateMachine(),
			registry:  reg,
			store:     store,
			logger:    logger,
			hooks:     hooks,
			confirm:   opts.Confirm,
		},
		llm:      llm,
		builder:  builder,
		reasoner: reasoner,
		prompts:  promptReg,
	}, nil
}

// PromptOptions override session settings for one prompt.
type PromptOptions struct {
	Effort reasoning.Effort
	// Continuation marks a generated follow-up prompt. Only the reply is
	// searched for actions so earlier requests are not planned twice.
	Continuation bool
}

// ProcessPrompt runs one prompt through the whole pipeline. Tool failures
// are reported in the Result; model and internal failures also return an
// error alongside a failed Result.
func (o *Orchestrator) ProcessPrompt(ctx context.Context, prompt string, popts PromptOptions) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "prompt is empty")
	}
	if err := o.state.Begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	effort := popts.Effort
	if effort == "" {
		effort = o.opts.Effort
	}

	res, err := o.process(ctx, prompt, effort, popts.Continuation)
	res.Summary.ProcessingTime = time.Since(start)
	o.state.Finish(err != nil)
	if err != nil {
		o.logger.Error("prompt failed", zap.Error(err), zap.String("kind", string(engine.KindOf(err))))
	}
	return res, err
}

func (o *Orchestrator) process(ctx context.Context, prompt string, effort reasoning.Effort, continuation bool) (*Result, error) {
	res := &Result{}
	o.logger.Event("prompt", zap.Int("length", len(prompt)), zap.String("effort", string(effort)))

	history := o.turns()
	convID, err := o.recordUserInput(prompt)
	if err != nil {
		return res, engine.Wrap(engine.KindInternal, "conversation", err)
	}
	res.ConversationID = convID

	enhanced, contextRef, err := o.compose(ctx, prompt, history, effort)
	if err != nil {
		return res, err
	}

	reply, err := o.call(ctx, enhanced)
	if err != nil {
		_ = o.store.AddMessage(convID, conversation.Message{
			Role:     conversation.RoleSystem,
			Content:  err.Error(),
			Metadata: map[string]string{"kind": string(engine.KindOf(err))},
		})
		return res, err
	}
	res.Reply = reply
	if err := o.store.AddMessage(convID, conversation.Message{Role: conversation.RoleAssistant, Content: reply}); err != nil {
		return res, engine.Wrap(engine.KindInternal, "conversation", err)
	}

	if !o.opts.Enabled {
		res.Success = true
		return res, o.store.Update(convID, conversation.Update{ContextRef: contextRef})
	}

	if err := o.state.Transition(engine.StateActing); err != nil {
		return res, engine.Wrap(engine.KindInternal, "state", err)
	}
	in := reasoning.Input{Prompt: prompt, Reply: reply, Effort: effort}
	if continuation {
		in.Prompt = ""
	}
	plan, err := o.reasoner.Analyze(ctx, in)
	if err != nil {
		return res, engine.Wrap(engine.KindInternal, "reasoning", err)
	}
	res.Explanation = plan.Explanation
	o.logger.Event("reasoning",
		zap.Int("actions", len(plan.Actions)),
		zap.String("explanation", plan.Explanation))

	kept, dropped := reasoning.Truncate(plan.Actions, o.opts.MaxActionsPerPrompt)
	outcomes, errs := o.run(ctx, kept)
	for _, a := range dropped {
		outcomes = append(outcomes, ActionOutcome{
			Action: a,
			Status: OutcomeDropped,
			Error:  fmt.Sprintf("detected but not executed: more than %d actions", o.opts.MaxActionsPerPrompt),
		})
	}
	res.Actions = outcomes
	res.Errors = errs
	res.Summary.ActionsPlanned = len(plan.Actions)

	records := make([]conversation.ActionRecord, 0, len(outcomes))
	var spent time.Duration
	for _, oc := range outcomes {
		res.Summary.tally(oc)
		records = append(records, conversation.ActionRecord{Action: oc.Action, Outcome: oc.Record})
		if oc.Record != nil {
			spent += oc.Record.Duration
		}
	}
	res.Success = len(errs) == 0

	err = o.store.Update(convID, conversation.Update{
		Reasoning: &conversation.Reasoning{
			Effort:      string(effort),
			Explanation: plan.Explanation,
			Decisions:   plan.Decisions,
		},
		Actions:    records,
		Duration:   spent,
		ContextRef: contextRef,
	})
	if err != nil {
		return res, engine.Wrap(engine.KindInternal, "conversation", err)
	}
	return res, nil
}

// turns returns the active conversation as context turns.
func (o *Orchestrator) turns() []contextbuilder.Turn {
	id := o.ConversationID()
	if id == "" {
		return nil
	}
	conv, err := o.store.Get(id)
	if err != nil {
		return nil
	}
	out := make([]contextbuilder.Turn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, contextbuilder.Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// compose builds the enhanced prompt. A failed context build degrades to no
// context rather than failing the prompt.
func (o *Orchestrator) compose(ctx context.Context, prompt string, history []contextbuilder.Turn, effort reasoning.Effort) (string, string, error) {
	var rendered, ref string
	snap, err := o.builder.Build(ctx, history)
	switch {
	case err != nil && ctx.Err() != nil:
		return "", "", ctx.Err()
	case err != nil:
		o.logger.Warn("context build failed", zap.Error(err))
	default:
		rendered = snap.Render()
		ref = fmt.Sprintf("%s:%d", snap.CreatedAt.Format(time.RFC3339), snap.Size())
		o.logger.Debug("context built",
			zap.Int("files", len(snap.FileSystem.Files)),
			zap.Int("size", snap.Size()),
			zap.Bool("trimmed", snap.Trimmed))
	}

	var toolText string
	if o.opts.Enabled {
		toolText = o.registry.Describe()
	}
	rules, err := project.LoadRules(o.opts.Dir)
	if err != nil {
		o.logger.Warn("project rules ignored", zap.Error(err))
	}
	enhanced, err := prompts.Compose(o.prompts, prompts.ComposeOptions{
		Effort:     effort,
		Tools:      toolText,
		Context:    rendered,
		Rules:      rules,
		MaxActions: o.opts.MaxActionsPerPrompt,
		Prompt:     prompt,
	})
	if err != nil {
		return "", "", engine.Wrap(engine.KindInternal, "prompt", err)
	}
	return enhanced, ref, nil
}

// call invokes the model with the per-call timeout, retrying transient
// failures.
func (o *Orchestrator) call(ctx context.Context, prompt string) (string, error) {
	policy := engine.DefaultRetryPolicy(o.opts.MaxRetries)
	attempt := 0
	reply, err := engine.RetryWithPolicy(ctx, policy,
		func(ctx context.Context) (string, error) {
			attempt++
			callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
			defer cancel()
			start := time.Now()
			reply, err := o.llm.Call(callCtx, o.opts.APIKey, prompt, o.opts.callOptions())
			o.logger.Event("llm.call",
				zap.String("provider", o.opts.Provider),
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)),
				zap.Int("prompt_tokens", engine.EstimateTokens(prompt)),
				zap.Int("reply_tokens", engine.EstimateTokens(reply)),
				zap.Bool("success", err == nil))
			if err != nil {
				return "", engine.ClassifyLLMError(o.opts.Provider, err)
			}
			return reply, nil
		},
		engine.Retryable,
		func(n int, delay time.Duration, err error) {
			o.hooks.OnLLMRetry(ctx, n, delay, err)
		},
	)
	if err != nil {
		var e *engine.Error
		if !errors.As(err, &e) {
			return "", engine.Wrap(engine.KindInternal, "call", err)
		}
		return "", err
	}
	return reply, nil
}

// Shutdown stops in-flight tools, ends active conversations, clears caches
// and closes the session log. It is idempotent. Use
// conversation.ReasonShutdown for interrupts.
func (o *Orchestrator) Shutdown(reason string) error {
	return o.shutdown(reason, o.builder.Cleanup)
}

// Cleanup removes conversations and session directories older than the
// configured retention.
func (o *Orchestrator) Cleanup() (int, error) {
	return o.store.Cleanup(time.Duration(o.opts.RetentionDays) * 24 * time.Hour)
}

// Status adds context cache figures to the core status.
func (o *Orchestrator) Status() OrchestratorStatus {
	return OrchestratorStatus{Status: o.Core.Status(), Cache: o.builder.CacheStats()}
}

// OrchestratorStatus is Status plus the context cache.
type OrchestratorStatus struct {
	Status
	Cache contextbuilder.CacheStats `json:"cache"`
}
