package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/reasoning"
)

// AutoOptions configure an autonomous session. Zero values fall back to the
// session options, then to the effort's iteration budget.
type AutoOptions struct {
	MaxIterations int
	Effort        reasoning.Effort
	// OnIteration is called after every iteration.
	OnIteration func(i int, res *Result)
}

// StartAutonomousSession repeats ProcessPrompt, feeding a progress summary
// back as the next prompt, until no actions are planned, the reply signals
// completion, the iteration budget is spent or ctx is cancelled.
func (o *Orchestrator) StartAutonomousSession(ctx context.Context, prompt string, aopts AutoOptions) (*Result, error) {
	effort := aopts.Effort
	if effort == "" {
		effort = o.opts.Effort
	}
	limit := aopts.MaxIterations
	if limit <= 0 {
		limit = o.opts.MaxIterations
	}
	if limit <= 0 {
		limit = effort.MaxIterations()
	}

	start := time.Now()
	total := &Result{Success: true}
	next := prompt
	for i := 1; ; i++ {
		if ctx.Err() != nil {
			total.StopReason = StopInterrupted
			break
		}
		res, err := o.ProcessPrompt(ctx, next, PromptOptions{Effort: effort, Continuation: i > 1})
		if res != nil {
			merge(total, res)
			total.Summary.Iterations = i
			if aopts.OnIteration != nil {
				aopts.OnIteration(i, res)
			}
		}
		if err != nil {
			total.Success = false
			total.StopReason = StopFailed
			if ctx.Err() != nil {
				total.StopReason = StopInterrupted
			}
			total.Summary.ProcessingTime = time.Since(start)
			return total, err
		}

		switch {
		case reasoning.IsComplete(res.Reply):
			total.StopReason = StopComplete
		case res.Summary.ActionsPlanned == 0:
			total.StopReason = StopNoActions
		case i >= limit:
			total.StopReason = StopMaxIterations
		case ctx.Err() != nil:
			total.StopReason = StopInterrupted
		}
		if total.StopReason != "" {
			break
		}
		next = continuation(prompt, total, res)
	}

	total.Summary.ProcessingTime = time.Since(start)
	o.logger.Event("autonomous.end",
		zap.Int("iterations", total.Summary.Iterations),
		zap.String("reason", total.StopReason),
		zap.Int("actions", total.Summary.ActionsExecuted))
	return total, nil
}

func merge(total, res *Result) {
	total.ConversationID = res.ConversationID
	total.Reply = res.Reply
	total.Explanation = res.Explanation
	total.Actions = append(total.Actions, res.Actions...)
	total.Errors = append(total.Errors, res.Errors...)
	total.Summary.add(res.Summary)
	if !res.Success {
		total.Success = false
	}
}

// continuation summarizes progress for the next iteration.
func continuation(task string, total, last *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Continue working on the original task: %s\n\n", task)
	fmt.Fprintf(&b, "Progress so far: actions executed: %d, errors: %d.\n",
		total.Summary.ActionsExecuted, total.Summary.Errors)
	if len(last.Actions) > 0 {
		b.WriteString("Results of the last step:\n")
		for _, a := range last.Actions {
			line := fmt.Sprintf("- %s %s: %s", a.Action.Type, a.Action.Param(0), a.Status)
			if a.Error != "" {
				line += " (" + a.Error + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	b.WriteString("\nWhat is the next step? If the task is finished, reply with \"Task complete\".")
	return b.String()
}
