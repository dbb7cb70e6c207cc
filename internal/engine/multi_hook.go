package engine

import (
	"context"
	"time"
)

// Hooks fans every event out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnToolStart(ctx context.Context, ev ToolEvent) {
	for _, h := range hs {
		h.OnToolStart(ctx, ev)
	}
}

func (hs Hooks) OnToolComplete(ctx context.Context, ev ToolEvent) {
	for _, h := range hs {
		h.OnToolComplete(ctx, ev)
	}
}

func (hs Hooks) OnReasoningStart(ctx context.Context, ev ReasoningEvent) {
	for _, h := range hs {
		h.OnReasoningStart(ctx, ev)
	}
}

func (hs Hooks) OnLLMRetry(ctx context.Context, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnLLMRetry(ctx, attempt, delay, err)
	}
}
