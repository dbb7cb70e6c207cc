package reasoning

import (
	"fmt"
	"regexp"
	"strings"
)

// Effort dials how much the model is asked to do per prompt and how many
// autonomous iterations are allowed.
type Effort string

const (
	EffortLow     Effort = "low"
	EffortMedium  Effort = "medium"
	EffortHigh    Effort = "high"
	EffortMaximum Effort = "maximum"
)

var effortIterations = map[Effort]int{
	EffortLow:     1,
	EffortMedium:  3,
	EffortHigh:    6,
	EffortMaximum: 10,
}

// ParseEffort validates an effort name. Empty means medium.
func ParseEffort(s string) (Effort, error) {
	e := Effort(strings.ToLower(strings.TrimSpace(s)))
	if e == "" {
		return EffortMedium, nil
	}
	if _, ok := effortIterations[e]; !ok {
		return "", fmt.Errorf("unknown effort %q (want low, medium, high or maximum)", s)
	}
	return e, nil
}

// MaxIterations caps the autonomous loop.
func (e Effort) MaxIterations() int {
	if n, ok := effortIterations[e]; ok {
		return n
	}
	return effortIterations[EffortMedium]
}

// CompletionSentinels are the phrases that end an autonomous session when
// they appear in a model reply.
var CompletionSentinels = []string{
	"task complete",
	"task completed",
	"successfully completed",
	"finished",
	"done",
}

var sentinelRe = func() *regexp.Regexp {
	quoted := make([]string, len(CompletionSentinels))
	for i, s := range CompletionSentinels {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}()

// IsComplete reports whether reply contains a completion sentinel as a
// whole word or phrase.
func IsComplete(reply string) bool {
	return sentinelRe.MatchString(reply)
}
