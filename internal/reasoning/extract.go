package reasoning

import (
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("(?s)```([\\w+-]*)[ \\t]*\\n(.*?)```")
	withRe  = regexp.MustCompile(`(?i)^[^\n]*?\b(?:with|containing)\s+(?:the\s+)?(?:(?:content|contents|text)\s+)?(?:of\s+)?[:=]?\s*([^\n]+)`)
)

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

type fence struct {
	span
	lang string
	body string
}

var shellLangs = map[string]bool{"bash": true, "sh": true, "shell": true, "console": true, "zsh": true}

func (f fence) shell() bool { return shellLangs[f.lang] }

func findFences(text string) []fence {
	var out []fence
	for _, m := range fenceRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, fence{
			span: span{m[0], m[1]},
			lang: strings.ToLower(text[m[2]:m[3]]),
			body: text[m[4]:m[5]],
		})
	}
	return out
}

// maskFences blanks fenced blocks so prose patterns cannot match code.
// Offsets are preserved.
func maskFences(text string, fences []fence) string {
	if len(fences) == 0 {
		return text
	}
	b := []byte(text)
	for _, f := range fences {
		for i := f.start; i < f.end; i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

// nearestFence returns the index of the code block closest to s, preferring
// the following one on a tie, or -1. Shell blocks only count when the file
// is itself a shell script.
func nearestFence(fences []fence, s span, file string) int {
	script := shellExt(file)
	best, bestDist := -1, -1
	for i, f := range fences {
		if f.shell() && !script {
			continue
		}
		var d int
		switch {
		case f.start >= s.end:
			d = f.start - s.end
		case f.end <= s.start:
			d = s.start - f.end
		default:
			continue
		}
		if best < 0 || d < bestDist || (d == bestDist && f.start >= s.end) {
			best, bestDist = i, d
		}
	}
	return best
}

// withClause finds "with <content>" on the rest of the line after a match.
func withClause(rest string) (string, bool) {
	m := withRe.FindStringSubmatch(rest)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	v = strings.TrimRight(v, ".")
	v = strings.Trim(v, "`'\"")
	return v, v != ""
}

type shellCmd struct {
	cmd string
	at  span
}

// shellLines splits a shell block into commands, joining continuations and
// dropping comments and prompts. Each command keeps the span of its first
// line relative to the block body.
func shellLines(body string) []shellCmd {
	var out []shellCmd
	offset := 0
	var pending strings.Builder
	pendingStart := -1
	for _, line := range strings.SplitAfter(body, "\n") {
		start := offset
		offset += len(line)
		trimmed := strings.TrimSpace(line)
		if pendingStart < 0 {
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "$ "), "> ")
			pendingStart = start
		}
		if strings.HasSuffix(trimmed, "\\") {
			pending.WriteString(strings.TrimSpace(strings.TrimSuffix(trimmed, "\\")))
			pending.WriteString(" ")
			continue
		}
		pending.WriteString(trimmed)
		out = append(out, shellCmd{strings.TrimSpace(pending.String()), span{pendingStart, offset}})
		pending.Reset()
		pendingStart = -1
	}
	if pendingStart >= 0 && strings.TrimSpace(pending.String()) != "" {
		out = append(out, shellCmd{strings.TrimSpace(pending.String()), span{pendingStart, offset}})
	}
	return out
}

// hit is one raw match before parameters are extracted.
type hit struct {
	pattern   int
	whole     span
	capture   string
	captureAt int // offset of capture in the text, -1 when it did not participate
}

// extraction is what a strategy produces for one hit.
type extraction struct {
	params     []string
	confidence float64
	fence      int // index of the code block consumed as content, or -1
	at         span
	source     string
}

// extract turns a hit into parameter vectors. Only the shell block strategy
// yields more than one.
func extract(p Pattern, h hit, text string, fences []fence) []extraction {
	base := extraction{confidence: p.Confidence, fence: -1, at: h.whole, source: text[h.whole.start:h.whole.end]}
	arg := strings.TrimSpace(h.capture)

	switch p.Strategy {
	case StrategyFileContent:
		if arg == "" {
			return nil
		}
		e := base
		if i := nearestFence(fences, h.whole, arg); i >= 0 {
			e.params = []string{arg, strings.TrimSuffix(fences[i].body, "\n")}
			e.fence = i
			e.confidence = clamp(p.Confidence + 0.05)
			return []extraction{e}
		}
		rest := text[h.whole.end:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		if content, ok := withClause(rest); ok {
			e.params = []string{arg, content}
			return []extraction{e}
		}
		e.params = []string{arg, ""}
		e.confidence = clamp(p.Confidence - 0.1)
		return []extraction{e}

	case StrategyPathOrDot:
		if arg == "" {
			arg = "."
		}
		e := base
		e.params = []string{arg}
		return []extraction{e}

	case StrategyShellBlock:
		var out []extraction
		for _, l := range shellLines(h.capture) {
			e := base
			e.params = []string{l.cmd}
			e.at = span{h.captureAt + l.at.start, h.captureAt + l.at.end}
			e.source = l.cmd
			out = append(out, e)
		}
		return out

	case StrategyCommand:
		// Verbatim, apart from surrounding whitespace.
		if arg == "" {
			return nil
		}
		e := base
		e.params = []string{arg}
		return []extraction{e}

	default: // path, package, script, url
		if arg == "" {
			return nil
		}
		e := base
		e.params = []string{strings.TrimRight(arg, ".,;:")}
		return []extraction{e}
	}
}

func shellExt(file string) bool {
	for _, ext := range []string{".sh", ".bash", ".zsh"} {
		if strings.HasSuffix(strings.ToLower(file), ext) {
			return true
		}
	}
	return false
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
