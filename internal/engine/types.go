package engine

import (
	"time"

	"github.com/google/uuid"
)

// ActionType is the semantic verb of an Action.
type ActionType string

const (
	ActionCreateFile      ActionType = "createFile"
	ActionWriteFile       ActionType = "writeFile"
	ActionReadFile        ActionType = "readFile"
	ActionDeleteFile      ActionType = "deleteFile"
	ActionCreateDirectory ActionType = "createDirectory"
	ActionListDirectory   ActionType = "listDirectory"
	ActionRunCommand      ActionType = "runCommand"
	ActionInstallPackage  ActionType = "installPackage"
	ActionRunScript       ActionType = "runScript"
	ActionFetchURL        ActionType = "fetchUrl"
	ActionAnalyzeCode     ActionType = "analyzeCode"
)

// destructiveKinds is matched against both the action type and the method name.
var destructiveKinds = map[string]bool{
	"deleteFile":     true,
	"writeFile":      true,
	"runCommand":     true,
	"installPackage": true,
}

// IsDestructive reports whether an action of this type/method may overwrite,
// delete or run a shell.
func IsDestructive(t ActionType, method string) bool {
	return destructiveKinds[string(t)] || destructiveKinds[method]
}

// Action is one tool-method invocation extracted from a model reply.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Tool        string     `json:"tool"`
	Method      string     `json:"method"`
	Params      []string   `json:"params"`
	Confidence  float64    `json:"confidence"`
	Destructive bool       `json:"destructive"`
	Source      string     `json:"source"`
	Warnings    []string   `json:"warnings,omitempty"`
}

// NewAction builds an Action with a fresh id and destructive flag derived
// from its type and method.
func NewAction(t ActionType, tool, method string, params []string) Action {
	return Action{
		ID:          uuid.NewString(),
		Type:        t,
		Tool:        tool,
		Method:      method,
		Params:      params,
		Destructive: IsDestructive(t, method),
	}
}

// Param returns the i-th parameter or "" when absent.
func (a Action) Param(i int) string {
	if i < 0 || i >= len(a.Params) {
		return ""
	}
	return a.Params[i]
}

// ExecutionRecord is the terminal outcome of executing one Action.
type ExecutionRecord struct {
	ID        string        `json:"id"`
	ActionID  string        `json:"actionId"`
	Tool      string        `json:"tool"`
	Method    string        `json:"method"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Kind      Kind          `json:"kind,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ValidationResult is the outcome of running an Action through the
// registry's validation pipeline.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Kind     Kind     `json:"kind,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Err converts a failed validation into an *Error carrying every reason.
func (v ValidationResult) Err(op string) error {
	if v.Valid {
		return nil
	}
	kind := v.Kind
	if kind == "" {
		kind = KindInvalidInput
	}
	return &Error{Kind: kind, Op: op, Reasons: v.Errors}
}
