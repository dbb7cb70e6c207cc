package prompts

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/reasoning"
)

// AgentPromptID is the system prompt used for every request.
const AgentPromptID = "agent"

const agentPrompt = `You are a command-line assistant working inside the user's project directory.
You can act on the local machine. Actions are read from your reply, so phrase them exactly as below.

How to request actions:
- Create a file: write "Create file ` + "`path/to/file.ext`" + `" followed by a fenced code block with the complete content.
- Overwrite a file: write "Update file ` + "`path`" + `" followed by a fenced code block with the complete new content.
- Read a file: "Read file ` + "`path`" + `".
- Delete a file: "Delete file ` + "`path`" + `".
- Create a directory: "Create directory ` + "`path`" + `".
- List a directory: "List files in ` + "`path`" + `".
- Run a shell command: "Run ` + "`command`" + `" on its own line, or a fenced bash block with one command per line.
- Install a package: "npm install <package>" inside a bash block.
- Run a project script: "npm run <script>".
- Fetch a URL: "Fetch <url>".
- Analyze a source file: "Analyze file ` + "`path`" + `".

Rules:
- Only use paths inside the project directory.
- Destructive actions (writes, deletes, commands, installs) may require the user's confirmation.
- Never request more than {{max_actions}} actions in one reply.
- Do not put example commands in bash blocks unless you want them executed.
- When the whole task is finished, say "Task complete".

Available tools:
{{tools}}

{{effort_instructions}}`

var effortInstructions = map[reasoning.Effort]string{
	reasoning.EffortLow: `Effort: low.
Answer directly and briefly. Request at most one action.`,
	reasoning.EffortMedium: `Effort: medium.
State the plan in one or two sentences, then request the actions needed.`,
	reasoning.EffortHigh: `Effort: high.
Think through the steps before acting. Explain each action in one line.
Check your work by reading back files or running the relevant tests.`,
	reasoning.EffortMaximum: `Effort: maximum.
Plan thoroughly: list the steps, edge cases and risks first.
Request every action needed, including tests and verification.
After each iteration, report what remains and continue until the task is fully done.`,
}

func registerBuiltins(r *Registry) {
	_ = r.Register(&Prompt{
		ID:          AgentPromptID,
		Version:     V1,
		Content:     agentPrompt,
		Description: "System prompt teaching the model the action phrasing the reasoner understands",
		Tags:        []string{"agent", "actions"},
	})
}

// EffortInstructions returns the instruction block for an effort level.
func EffortInstructions(e reasoning.Effort) string {
	if s, ok := effortInstructions[e]; ok {
		return s
	}
	return effortInstructions[reasoning.EffortMedium]
}

// ComposeOptions are the inputs of an enhanced prompt.
type ComposeOptions struct {
	Effort     reasoning.Effort
	Tools      string // registry description
	Context    string // rendered context snapshot
	Rules      string // project rules
	MaxActions int
	Prompt     string
}

// Compose builds the enhanced prompt: system prompt, workspace context and
// the user's request.
func Compose(r *Registry, opts ComposeOptions) (string, error) {
	if r == nil {
		r = Default()
	}
	b, err := NewBuilder(r, AgentPromptID)
	if err != nil {
		return "", err
	}
	maxActions := "10"
	if opts.MaxActions > 0 {
		maxActions = fmt.Sprint(opts.MaxActions)
	}
	tools := strings.TrimSpace(opts.Tools)
	if tools == "" {
		tools = "(none)"
	}
	system, err := b.Set("tools", tools).
		Set("effort_instructions", EffortInstructions(opts.Effort)).
		Set("max_actions", maxActions).
		Build()
	if err != nil {
		return "", err
	}

	// Context and request are user data and never go through substitution.
	parts := []string{system}
	if rules := strings.TrimSpace(opts.Rules); rules != "" {
		parts = append(parts, "Project rules:\n"+rules)
	}
	if ctx := strings.TrimSpace(opts.Context); ctx != "" {
		parts = append(parts, "<workspace_context>\n"+ctx+"\n</workspace_context>")
	}
	parts = append(parts, "User request:\n"+opts.Prompt)
	return strings.Join(parts, "\n\n"), nil
}
