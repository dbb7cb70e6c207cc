package agent

import (
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/execution"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/filesystem"
)

// OutcomeStatus says what happened to a planned action.
type OutcomeStatus string

const (
	OutcomeExecuted OutcomeStatus = "executed"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeInvalid  OutcomeStatus = "invalid"  // rejected by validation
	OutcomeRejected OutcomeStatus = "rejected" // declined at the confirmation gate
	OutcomeDropped  OutcomeStatus = "dropped"  // beyond maxActionsPerPrompt
	OutcomeSkipped  OutcomeStatus = "skipped"  // not run after an earlier failure
)

// ActionOutcome pairs a planned action with its fate.
type ActionOutcome struct {
	Action engine.Action           `json:"action"`
	Status OutcomeStatus           `json:"status"`
	Record *engine.ExecutionRecord `json:"record,omitempty"`
	Error  string                  `json:"error,omitempty"`
	Kind   engine.Kind             `json:"kind,omitempty"`
}

// Summary aggregates a prompt or an autonomous session.
type Summary struct {
	ActionsPlanned  int           `json:"actionsPlanned"`
	ActionsExecuted int           `json:"actionsExecuted"`
	FilesCreated    int           `json:"filesCreated"`
	FilesModified   int           `json:"filesModified"`
	CommandsRun     int           `json:"commandsRun"`
	Errors          int           `json:"errors"` // failed executions
	ProcessingTime  time.Duration `json:"processingTime"`
	Iterations      int           `json:"iterations,omitempty"`
}

func (s *Summary) add(o Summary) {
	s.ActionsPlanned += o.ActionsPlanned
	s.ActionsExecuted += o.ActionsExecuted
	s.FilesCreated += o.FilesCreated
	s.FilesModified += o.FilesModified
	s.CommandsRun += o.CommandsRun
	s.Errors += o.Errors
}

// Result is returned by ProcessPrompt and StartAutonomousSession.
type Result struct {
	Success        bool            `json:"success"`
	ConversationID string          `json:"conversationId"`
	Reply          string          `json:"reply"`
	Explanation    string          `json:"explanation,omitempty"`
	Actions        []ActionOutcome `json:"actions"`
	Errors         []string        `json:"errors,omitempty"` // validation and execution errors
	Summary        Summary         `json:"summary"`
	StopReason     string          `json:"stopReason,omitempty"` // autonomous sessions only
}

// Autonomous loop stop reasons.
const (
	StopNoActions     = "no actions planned"
	StopComplete      = "task complete"
	StopMaxIterations = "max iterations reached"
	StopInterrupted   = "interrupted"
	StopFailed        = "failed"
)

var commandMethods = map[string]bool{
	execution.MethodExecuteCommand: true,
	execution.MethodInstallPackage: true,
	execution.MethodRunScript:      true,
	execution.MethodSpawnProcess:   true,
}

// tally counts one outcome into the summary.
func (s *Summary) tally(o ActionOutcome) {
	if o.Record == nil {
		return
	}
	s.ActionsExecuted++
	if !o.Record.Success {
		s.Errors++
	}
	switch {
	case o.Action.Tool == execution.Name && commandMethods[o.Action.Method]:
		s.CommandsRun++
	case o.Action.Tool == filesystem.Name && o.Record.Success:
		switch r := o.Record.Result.(type) {
		case *filesystem.WriteResult:
			if r.Created {
				s.FilesCreated++
			} else {
				s.FilesModified++
			}
		default:
			if o.Action.Method == filesystem.MethodDeleteFile {
				s.FilesModified++
			}
		}
	}
}
