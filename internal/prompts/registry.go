package prompts

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/mod/semver"
)

// Registry stores prompts by id and version.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]map[Version]*Prompt
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry holding the built-in prompts.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{prompts: make(map[string]map[Version]*Prompt)}
}

func canonical(v Version) string { return semver.Canonical("v" + string(v)) }

// Register adds or replaces a prompt version.
func (r *Registry) Register(p *Prompt) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("prompt id is required")
	}
	if canonical(p.Version) == "" {
		return fmt.Errorf("prompt %s: invalid version %q", p.ID, p.Version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[Version]*Prompt)
	}
	r.prompts[p.ID][p.Version] = p
	return nil
}

// Get returns one version of a prompt.
func (r *Registry) Get(id string, v Version) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	p, ok := versions[v]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, v)
	}
	return p, nil
}

// Latest returns the highest non-deprecated version, falling back to the
// highest deprecated one.
func (r *Registry) Latest(id string) (*Prompt, error) {
	vs := r.Versions(id)
	if len(vs) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(vs) - 1; i >= 0; i-- {
		if p := r.prompts[id][vs[i]]; !p.Deprecated {
			return p, nil
		}
	}
	return r.prompts[id][vs[len(vs)-1]], nil
}

// List returns every prompt id, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Versions returns the versions of a prompt in ascending semver order.
func (r *Registry) Versions(id string) []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Version, 0, len(r.prompts[id]))
	for v := range r.prompts[id] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return semver.Compare(canonical(out[i]), canonical(out[j])) < 0
	})
	return out
}
