package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/conversation"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
)

// Core owns the session state, the tools and the conversation. It knows
// nothing about prompts or models.
type Core struct {
	opts      Options
	sessionID string
	dir       string // session directory
	started   time.Time

	state    *engine.StateMachine
	registry *registry.Registry
	store    *conversation.Store
	logger   *logging.Logger
	hooks    engine.Hooks
	confirm  engine.Confirmer

	mu             sync.Mutex
	conversationID string

	shutdownOnce sync.Once
	shutdownErr  error
}

// SessionID identifies this session's log and conversation directory.
func (c *Core) SessionID() string { return c.sessionID }

// State returns the current session state.
func (c *Core) State() engine.SessionState { return c.state.Current() }

// Registry exposes the tool registry.
func (c *Core) Registry() *registry.Registry { return c.registry }

// Store exposes the conversation store.
func (c *Core) Store() *conversation.Store { return c.store }

// Logger exposes the session logger.
func (c *Core) Logger() *logging.Logger { return c.logger }

// ConversationID returns the active conversation, or "" before the first
// prompt.
func (c *Core) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// recordUserInput appends input to the active conversation, starting one if
// needed.
func (c *Core) recordUserInput(input string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conversationID != "" {
		err := c.store.AddMessage(c.conversationID, conversation.Message{Role: conversation.RoleUser, Content: input})
		if err == nil {
			return c.conversationID, nil
		}
		if !engine.IsKind(err, engine.KindInvalidInput) {
			return "", err
		}
		// Ended elsewhere; start over.
	}
	conv, err := c.store.Start(conversation.StartOptions{Input: input, AgentID: c.sessionID})
	if err != nil {
		return "", err
	}
	c.conversationID = conv.ID
	c.logger.Event("conversation.start", zap.String("conversation_id", conv.ID))
	return conv.ID, nil
}

// NewConversation ends the active conversation; the next prompt starts a
// fresh one.
func (c *Core) NewConversation(reason string) error {
	c.mu.Lock()
	id := c.conversationID
	c.conversationID = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	return c.store.End(id, reason)
}

// needsConfirmation applies the gate policy: only destructive actions ask,
// and never under autoApprove.
func (c *Core) needsConfirmation(a engine.Action) bool {
	return a.Destructive && c.opts.ConfirmationEnabled && !c.opts.AutoApprove
}

// gate asks the confirmer about every destructive action. Without a
// confirmer nothing destructive is approved.
func (c *Core) gate(ctx context.Context, a engine.Action) (bool, string) {
	if !c.needsConfirmation(a) {
		return true, ""
	}
	reason := fmt.Sprintf("%s %s.%s is destructive", a.Type, a.Tool, a.Method)
	approved := false
	if c.confirm != nil {
		approved = c.confirm(ctx, engine.ConfirmationRequest{Action: a, Reason: reason})
	}
	c.logger.Event("confirmation",
		zap.String("action_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("target", a.Param(0)),
		zap.Bool("approved", approved))
	if !approved {
		if c.confirm == nil {
			return false, "confirmation required but no confirmer is available"
		}
		return false, "declined by user"
	}
	return true, ""
}

// run validates, gates and executes actions in order. Outcomes keep the
// order of actions.
func (c *Core) run(ctx context.Context, actions []engine.Action) ([]ActionOutcome, []string) {
	outcomes := make([]ActionOutcome, len(actions))
	var (
		errs     []string
		approved []engine.Action
		slot     = make(map[string]int, len(actions))
	)
	for i, a := range actions {
		outcomes[i].Action = a
		v := c.registry.Validate(a)
		if !v.Valid {
			err := v.Err("validate")
			outcomes[i].Status = OutcomeInvalid
			outcomes[i].Error = err.Error()
			outcomes[i].Kind = engine.KindOf(err)
			errs = append(errs, fmt.Sprintf("%s %s: %v", a.Type, a.Param(0), err))
			continue
		}
		outcomes[i].Action.Warnings = v.Warnings
		ok, why := c.gate(ctx, outcomes[i].Action)
		if !ok {
			outcomes[i].Status = OutcomeRejected
			outcomes[i].Error = why
			continue
		}
		slot[a.ID] = i
		approved = append(approved, outcomes[i].Action)
	}

	for _, rec := range c.registry.ExecuteSequence(ctx, approved, c.opts.ContinueOnError) {
		i := slot[rec.ActionID]
		r := rec
		outcomes[i].Record = &r
		if rec.Success {
			outcomes[i].Status = OutcomeExecuted
			continue
		}
		outcomes[i].Status = OutcomeFailed
		outcomes[i].Error = rec.Error
		outcomes[i].Kind = rec.Kind
		errs = append(errs, fmt.Sprintf("%s %s: %s", outcomes[i].Action.Type, outcomes[i].Action.Param(0), rec.Error))
	}
	for i := range outcomes {
		if outcomes[i].Status == "" {
			outcomes[i].Status = OutcomeSkipped
		}
	}
	return outcomes, errs
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID      string              `json:"sessionId"`
	State          engine.SessionState `json:"state"`
	ConversationID string              `json:"conversationId,omitempty"`
	Uptime         time.Duration       `json:"uptime"`
	Registry       registry.Status     `json:"registry"`
	LogCounts      map[string]int64    `json:"logCounts"`
}

// Status reports the session state.
func (c *Core) Status() Status {
	return Status{
		SessionID:      c.sessionID,
		State:          c.state.Current(),
		ConversationID: c.ConversationID(),
		Uptime:         time.Since(c.started),
		Registry:       c.registry.Status(),
		LogCounts:      c.logger.Counts(),
	}
}

// shutdown stops tools, ends conversations and closes the log. Conversations
// end with reason; conversation.ReasonShutdown marks them interrupted.
// extra runs between ending conversations and closing the log.
func (c *Core) shutdown(reason string, extra func() error) error {
	c.shutdownOnce.Do(func() {
		_ = c.state.Transition(engine.StateShuttingDown)
		c.registry.StopAll()

		var errs []error
		ended, err := c.store.EndActive(reason)
		if err != nil {
			errs = append(errs, err)
		}
		if extra != nil {
			if err := extra(); err != nil {
				errs = append(errs, err)
			}
		}
		if c.dir != "" {
			if err := c.registry.Metrics().WriteTextfile(filepath.Join(c.dir, "metrics.prom")); err != nil {
				errs = append(errs, err)
			}
		}
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
		c.logger.Info("shutdown", zap.String("reason", reason), zap.Strings("ended", ended))
		if err := c.logger.EndSession(reason); err != nil {
			errs = append(errs, err)
		}
		_ = c.state.Transition(engine.StateShutdown)
		c.shutdownErr = errors.Join(errs...)
	})
	return c.shutdownErr
}
