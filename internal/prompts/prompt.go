// Package prompts holds the versioned system prompts and composes them with
// tool descriptions, effort instructions and workspace context.
package prompts

// Version is a semantic version such as "1.2.0".
type Version string

const (
	V1 Version = "1.0.0"
)

// Prompt is one registered prompt version.
type Prompt struct {
	ID          string
	Version     Version
	Content     string // may contain {{name}} placeholders
	Description string
	Tags        []string
	Deprecated  bool
}
