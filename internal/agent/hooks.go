package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
)

// logHook writes orchestrator events to the session log. Tool completions
// are logged by the registry itself.
type logHook struct {
	engine.NopHook
	logger *logging.Logger
}

func (h logHook) OnToolStart(_ context.Context, ev engine.ToolEvent) {
	h.logger.Event("tool.start",
		zap.String("action_id", ev.Action.ID),
		zap.String("tool", ev.Action.Tool),
		zap.String("method", ev.Action.Method),
		zap.Bool("destructive", ev.Action.Destructive))
}

func (h logHook) OnReasoningStart(_ context.Context, ev engine.ReasoningEvent) {
	h.logger.Debug("reasoning.start", zap.String("effort", ev.Effort), zap.Int("reply_length", len(ev.Reply)))
}

func (h logHook) OnLLMRetry(_ context.Context, attempt int, delay time.Duration, err error) {
	h.logger.Warn("llm.retry", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
}
