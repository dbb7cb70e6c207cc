package conversation

import (
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Status is the lifecycle state of a conversation. It only moves forward
// from active.
type Status string

const (
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
	StatusShutdown Status = "shutdown"
)

// ReasonShutdown ends a conversation with StatusShutdown.
const ReasonShutdown = "shutdown"

// Message is one entry in a conversation.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Reasoning records how a reply was turned into a plan.
type Reasoning struct {
	Timestamp   time.Time `json:"timestamp"`
	Effort      string    `json:"effort,omitempty"`
	Explanation string    `json:"explanation"`
	Decisions   []string  `json:"decisions,omitempty"`
}

// ActionRecord wraps a planned action and, once run, its outcome.
type ActionRecord struct {
	Action    engine.Action           `json:"action"`
	Outcome   *engine.ExecutionRecord `json:"outcome,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Counters aggregate activity in a conversation.
type Counters struct {
	Messages      int           `json:"messages"`
	ToolCalls     int           `json:"toolCalls"`
	Errors        int           `json:"errors"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// Conversation is the durable record of one dialog.
type Conversation struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	AgentID     string         `json:"agentId,omitempty"`
	ParentID    string         `json:"parentId,omitempty"`
	BranchPoint *int           `json:"branchPoint,omitempty"`
	Input       string         `json:"input"`
	Status      Status         `json:"status"`
	EndReason   string         `json:"endReason,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	EndedAt     *time.Time     `json:"endedAt,omitempty"`
	ContextRef  string         `json:"contextRef,omitempty"`
	Messages    []Message      `json:"messages"`
	Reasoning   []Reasoning    `json:"reasoning"`
	Actions     []ActionRecord `json:"actions"`
	Counters    Counters       `json:"counters"`
}

// Meta is a lightweight listing entry.
type Meta struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	ParentID  string    `json:"parentId,omitempty"`
	Input     string    `json:"input"`
	Status    Status    `json:"status"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Conversation) meta() Meta {
	return Meta{
		ID:        c.ID,
		SessionID: c.SessionID,
		ParentID:  c.ParentID,
		Input:     c.Input,
		Status:    c.Status,
		Messages:  len(c.Messages),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// clone returns a copy that shares no slices or maps with c.
func (c *Conversation) clone() *Conversation {
	out := *c
	if c.BranchPoint != nil {
		bp := *c.BranchPoint
		out.BranchPoint = &bp
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.clone()
	}
	out.Reasoning = make([]Reasoning, len(c.Reasoning))
	for i, r := range c.Reasoning {
		r.Decisions = append([]string(nil), r.Decisions...)
		out.Reasoning[i] = r
	}
	out.Actions = make([]ActionRecord, len(c.Actions))
	for i, a := range c.Actions {
		a.Action.Params = append([]string(nil), a.Action.Params...)
		a.Action.Warnings = append([]string(nil), a.Action.Warnings...)
		if a.Outcome != nil {
			o := *a.Outcome
			a.Outcome = &o
		}
		out.Actions[i] = a
	}
	return &out
}

func (m Message) clone() Message {
	if m.Metadata != nil {
		md := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}
