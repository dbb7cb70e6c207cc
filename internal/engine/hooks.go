package engine

import (
	"context"
	"time"
)

// ToolEvent describes a tool invocation. Record is nil on start.
type ToolEvent struct {
	Action Action
	Record *ExecutionRecord
}

// ReasoningEvent is emitted before the reasoning engine runs.
type ReasoningEvent struct {
	Prompt string
	Reply  string
	Effort string
}

// ConfirmationRequest is sent before a destructive action executes.
type ConfirmationRequest struct {
	Action Action
	Reason string
}

// Hook receives orchestrator events. Events only flow outward.
type Hook interface {
	OnToolStart(ctx context.Context, ev ToolEvent)
	OnToolComplete(ctx context.Context, ev ToolEvent)
	OnReasoningStart(ctx context.Context, ev ReasoningEvent)
	OnLLMRetry(ctx context.Context, attempt int, delay time.Duration, err error)
}

// Confirmer answers a confirmation request.
type Confirmer func(ctx context.Context, req ConfirmationRequest) bool

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnToolStart(context.Context, ToolEvent)                {}
func (NopHook) OnToolComplete(context.Context, ToolEvent)             {}
func (NopHook) OnReasoningStart(context.Context, ReasoningEvent)      {}
func (NopHook) OnLLMRetry(context.Context, int, time.Duration, error) {}

// HookFuncs adapts optional callbacks to the Hook interface.
type HookFuncs struct {
	ToolStart      func(ctx context.Context, ev ToolEvent)
	ToolComplete   func(ctx context.Context, ev ToolEvent)
	ReasoningStart func(ctx context.Context, ev ReasoningEvent)
	LLMRetry       func(ctx context.Context, attempt int, delay time.Duration, err error)
}

func (f HookFuncs) OnToolStart(ctx context.Context, ev ToolEvent) {
	if f.ToolStart != nil {
		f.ToolStart(ctx, ev)
	}
}

func (f HookFuncs) OnToolComplete(ctx context.Context, ev ToolEvent) {
	if f.ToolComplete != nil {
		f.ToolComplete(ctx, ev)
	}
}

func (f HookFuncs) OnReasoningStart(ctx context.Context, ev ReasoningEvent) {
	if f.ReasoningStart != nil {
		f.ReasoningStart(ctx, ev)
	}
}

func (f HookFuncs) OnLLMRetry(ctx context.Context, attempt int, delay time.Duration, err error) {
	if f.LLMRetry != nil {
		f.LLMRetry(ctx, attempt, delay, err)
	}
}
