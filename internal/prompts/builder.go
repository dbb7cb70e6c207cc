package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)

// Builder composes a prompt from a registered base, extra fragments and
// {{name}} variables.
type Builder struct {
	base      *Prompt
	fragments []string
	vars      map[string]string
}

// NewBuilder starts from the latest version of id.
func NewBuilder(r *Registry, id string) (*Builder, error) {
	p, err := r.Latest(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return &Builder{base: p, fragments: []string{p.Content}, vars: make(map[string]string)}, nil
}

// Base returns the prompt the builder started from.
func (b *Builder) Base() *Prompt { return b.base }

// AddFragment appends a paragraph. Empty fragments are skipped.
func (b *Builder) AddFragment(text string) *Builder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// Set binds a variable.
func (b *Builder) Set(key, value string) *Builder {
	b.vars[key] = value
	return b
}

// Build joins the fragments and substitutes variables in one pass, so
// values containing braces are never expanded again. Unbound placeholders
// are an error.
func (b *Builder) Build() (string, error) {
	joined := strings.Join(b.fragments, "\n\n")
	missing := make(map[string]bool)
	out := placeholderRe.ReplaceAllStringFunc(joined, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := b.vars[key]
		if !ok {
			missing[key] = true
			return m
		}
		return v
	})
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("prompt %s: unbound variables %s", b.base.ID, strings.Join(keys, ", "))
	}
	return out, nil
}
