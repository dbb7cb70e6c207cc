package execution

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 1024 * 1024
)

// DefaultBlockedCommands are head words never run.
var DefaultBlockedCommands = []string{
	"sudo", "su", "doas", "shutdown", "reboot", "halt", "poweroff", "init",
	"mkfs", "fdisk", "dd", "format", "diskpart", "passwd", "useradd", "userdel",
}

// Policy is the command safety gate.
type Policy struct {
	AllowedCommands  []string // empty = any command not blocked
	BlockedCommands  []string
	MaxExecutionTime time.Duration
	MaxOutputSize    int64
}

type commandRule struct {
	re     *regexp.Regexp
	reason string
}

// dangerousRules abort execution.
var dangerousRules = []commandRule{
	{regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*|-[rR]\s+-f|-f\s+-[rR]|--recursive\s+--force|--force\s+--recursive)\b`), "force-recursive removal (rm -rf)"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|disk|mem|kmem|port)`), "redirection to a device node"},
	{regexp.MustCompile(`(^|[;&|]\s*)(sudo|doas|su)\b`), "privilege escalation"},
	{regexp.MustCompile(`[;&|]\s*rm\s`), "removal chained after another command"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb"},
	{regexp.MustCompile(`\bdd\s+.*\bof=/dev/`), "raw write to a device"},
	{regexp.MustCompile(`\bchmod\s+(-R\s+)?[0-7]*777\s+/(\s|$)`), "world-writable root"},
	{regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(ba|z)?sh\b`), "piping a download into a shell"},
}

// warningRules are reported but do not block.
var warningRules = []commandRule{
	{regexp.MustCompile(`[;&|]`), "command chains several commands"},
	{regexp.MustCompile("`|\\$\\("), "command uses subshell substitution"},
	{regexp.MustCompile(`[<>]`), "command redirects input or output"},
	{regexp.MustCompile(`\$\{?[A-Za-z_]`), "command expands environment variables"},
}

type gate struct {
	allowed map[string]bool
	blocked map[string]bool
	timeout time.Duration
	maxOut  int64
}

func newGate(p Policy) *gate {
	g := &gate{
		allowed: toSet(p.AllowedCommands),
		blocked: toSet(p.BlockedCommands),
		timeout: p.MaxExecutionTime,
		maxOut:  p.MaxOutputSize,
	}
	if p.BlockedCommands == nil {
		g.blocked = toSet(DefaultBlockedCommands)
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.maxOut <= 0 {
		g.maxOut = DefaultMaxOutput
	}
	return g
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out[it] = true
		}
	}
	return out
}

// check runs command through the dangerous patterns, the deny list and the
// allow list, in that order. Every head word of a chained command is checked.
func (g *gate) check(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "command is empty")
	}
	for _, rule := range dangerousRules {
		if rule.re.MatchString(command) {
			return nil, engine.Errorf(engine.KindBlocked, "dangerous command blocked: %s: %s", rule.reason, command)
		}
	}
	for _, head := range HeadWords(command) {
		if g.blocked[head] {
			return nil, engine.Errorf(engine.KindBlocked, "command %q is blocked", head)
		}
		if len(g.allowed) > 0 && !g.allowed[head] {
			return nil, engine.Errorf(engine.KindBlocked, "command %q is not in the allowed list", head)
		}
	}
	return warningsFor(command), nil
}

func warningsFor(command string) []string {
	var warnings []string
	for _, rule := range warningRules {
		if rule.re.MatchString(command) {
			warnings = append(warnings, rule.reason)
		}
	}
	return warnings
}

var chainSplit = regexp.MustCompile(`\|\||&&|[;|&\n]`)

// HeadWords returns the executable name of every command in a chain,
// skipping leading VAR=value assignments and directory prefixes.
func HeadWords(command string) []string {
	var heads []string
	for _, segment := range chainSplit.Split(command, -1) {
		for _, tok := range parseArgs(strings.TrimSpace(segment)) {
			if strings.Contains(tok, "=") && !strings.HasPrefix(tok, "=") && !strings.ContainsAny(tok[:strings.Index(tok, "=")], "/-.") {
				continue
			}
			heads = append(heads, filepath.Base(tok))
			break
		}
	}
	return heads
}
