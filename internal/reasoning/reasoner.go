// Package reasoning turns a prompt and a model reply into an ordered plan of
// tool actions using a data-driven catalog of action patterns.
package reasoning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
)

// Options configures a Reasoner.
type Options struct {
	Patterns []Pattern // defaults to DefaultPatterns
	Hook     engine.Hook
	Logger   *logging.Logger
}

// Reasoner extracts actions. It is safe for concurrent use.
type Reasoner struct {
	mu       sync.RWMutex
	patterns []Pattern
	hook     engine.Hook
	logger   *logging.Logger
}

// New creates a Reasoner. Invalid patterns in opts are skipped and logged.
func New(opts Options) *Reasoner {
	r := &Reasoner{hook: opts.Hook, logger: opts.Logger}
	if r.hook == nil {
		r.hook = engine.NopHook{}
	}
	if r.logger == nil {
		r.logger = logging.Nop()
	}
	patterns := opts.Patterns
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	for _, p := range patterns {
		if err := r.AddActionPattern(p); err != nil {
			r.logger.Warn("skipping action pattern", zap.Error(err))
		}
	}
	return r
}

// AddActionPattern appends a pattern to the catalog. It ranks after every
// pattern already present when confidences tie.
func (r *Reasoner) AddActionPattern(p Pattern) error {
	if err := p.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patterns {
		if existing.Name == p.Name {
			return fmt.Errorf("pattern %s already registered", p.Name)
		}
	}
	r.patterns = append(r.patterns, p)
	return nil
}

// Patterns returns a copy of the catalog in declaration order.
func (r *Reasoner) Patterns() []Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Pattern(nil), r.patterns...)
}

// Input is what the reasoner looks at.
type Input struct {
	Prompt string
	Reply  string
	Effort Effort
}

// Result is the plan plus the record of how it was reached.
type Result struct {
	Actions     []engine.Action
	Effort      Effort
	Explanation string
	Decisions   []string
}

type candidate struct {
	action  engine.Action
	pattern int
	at      span
	fence   int
}

// Analyze extracts actions from the prompt and reply, best first. Matches of
// equal confidence keep their order of appearance.
func (r *Reasoner) Analyze(ctx context.Context, in Input) (*Result, error) {
	effort := in.Effort
	if effort == "" {
		effort = EffortMedium
	}
	r.hook.OnReasoningStart(ctx, engine.ReasoningEvent{Prompt: in.Prompt, Reply: in.Reply, Effort: string(effort)})

	text := in.Prompt
	if in.Reply != "" {
		text += "\n\n" + in.Reply
	}
	fences := findFences(text)
	prose := maskFences(text, fences)
	patterns := r.Patterns()

	var cands []candidate
	for pi, p := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		haystack := prose
		if p.InCode {
			haystack = text
		}
		for _, m := range p.Regexp.FindAllStringSubmatchIndex(haystack, -1) {
			h := hit{pattern: pi, whole: span{m[0], m[1]}, captureAt: m[2]}
			if m[2] >= 0 {
				h.capture = text[m[2]:m[3]]
			}
			for _, e := range extract(p, h, text, fences) {
				a := engine.NewAction(p.Type, p.Tool, p.Method, e.params)
				a.Confidence = e.confidence
				a.Destructive = a.Destructive || p.Destructive
				a.Source = strings.TrimSpace(e.source)
				cands = append(cands, candidate{action: a, pattern: pi, at: e.at, fence: e.fence})
			}
		}
	}

	actions, decisions := resolve(cands, fences, patterns)
	res := &Result{
		Actions:     actions,
		Effort:      effort,
		Explanation: explain(len(cands), actions),
		Decisions:   decisions,
	}
	r.logger.Debug("reasoning complete",
		zap.String("effort", string(effort)),
		zap.Int("matches", len(cands)),
		zap.Int("actions", len(actions)))
	return res, nil
}

// resolve deduplicates candidates and orders the survivors.
//
// Candidates are considered by confidence, then declaration order, then
// position. A candidate is dropped when its span overlaps one already kept,
// when it targets the same tool method and first parameter as one already
// kept, or when it lies inside a code block consumed as file content.
func resolve(cands []candidate, fences []fence, patterns []Pattern) ([]engine.Action, []string) {
	consumed := make(map[int]bool)
	for _, c := range cands {
		if c.fence >= 0 {
			consumed[c.fence] = true
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.action.Confidence != b.action.Confidence {
			return a.action.Confidence > b.action.Confidence
		}
		if a.pattern != b.pattern {
			return a.pattern < b.pattern
		}
		return a.at.start < b.at.start
	})

	var (
		kept      []candidate
		decisions []string
		seen      = make(map[string]string)
	)
next:
	for _, c := range cands {
		name := patterns[c.pattern].Name
		for fi := range consumed {
			if fences[fi].span.overlaps(c.at) && c.fence != fi {
				decisions = append(decisions, fmt.Sprintf("ignored %s %q: inside file content", name, c.action.Source))
				continue next
			}
		}
		for _, k := range kept {
			if k.at.overlaps(c.at) {
				decisions = append(decisions, fmt.Sprintf("ignored %s %q: overlaps %s", name, c.action.Source, patterns[k.pattern].Name))
				continue next
			}
		}
		key := c.action.Tool + "." + c.action.Method + ":" + c.action.Param(0)
		if by, dup := seen[key]; dup {
			decisions = append(decisions, fmt.Sprintf("ignored %s %q: duplicate of %s", name, c.action.Source, by))
			continue
		}
		seen[key] = name
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].action.Confidence != kept[j].action.Confidence {
			return kept[i].action.Confidence > kept[j].action.Confidence
		}
		return kept[i].at.start < kept[j].at.start
	})
	actions := make([]engine.Action, len(kept))
	for i, k := range kept {
		actions[i] = k.action
		decisions = append(decisions, fmt.Sprintf("planned %s %s via %s.%s (confidence %.2f)",
			k.action.Type, k.action.Param(0), k.action.Tool, k.action.Method, k.action.Confidence))
	}
	return actions, decisions
}

func explain(matches int, actions []engine.Action) string {
	if len(actions) == 0 {
		if matches == 0 {
			return "No actionable instructions found."
		}
		return fmt.Sprintf("Found %d candidate action(s) but none survived deduplication.", matches)
	}
	destructive := 0
	for _, a := range actions {
		if a.Destructive {
			destructive++
		}
	}
	return fmt.Sprintf("Planned %d action(s) from %d match(es); %d destructive.", len(actions), matches, destructive)
}

// Truncate keeps the first n actions of a plan already sorted by confidence
// and returns the dropped ones.
func Truncate(actions []engine.Action, n int) (kept, dropped []engine.Action) {
	if n <= 0 || len(actions) <= n {
		return actions, nil
	}
	return actions[:n], actions[n:]
}
