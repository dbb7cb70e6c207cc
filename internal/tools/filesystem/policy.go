package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// DefaultMaxFileSize is the largest file the tool reads or writes.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// DefaultBlockedExtensions are executable and installer formats.
var DefaultBlockedExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".scr", ".msi", ".dll",
	".app", ".dmg", ".pkg", ".deb", ".rpm", ".vbs", ".ps1",
}

// Policy is the safety gate applied to every path.
type Policy struct {
	AllowedRoots      []string
	BlockedExtensions []string
	MaxFileSize       int64
}

// DefaultPolicy allows the working directory and the OS temp directory.
func DefaultPolicy() Policy {
	roots := []string{os.TempDir()}
	if wd, err := os.Getwd(); err == nil {
		roots = append([]string{wd}, roots...)
	}
	return Policy{
		AllowedRoots:      roots,
		BlockedExtensions: DefaultBlockedExtensions,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// guard resolves paths and enforces a Policy.
type guard struct {
	base    string
	roots   []string
	blocked map[string]bool
	maxSize int64
}

func newGuard(base string, p Policy) *guard {
	g := &guard{base: base, blocked: make(map[string]bool), maxSize: p.MaxFileSize}
	if g.maxSize <= 0 {
		g.maxSize = DefaultMaxFileSize
	}
	for _, root := range p.AllowedRoots {
		if root == "" {
			continue
		}
		abs := root
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(base, abs)
		}
		g.roots = append(g.roots, realPath(filepath.Clean(abs)))
	}
	for _, ext := range p.BlockedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		g.blocked[ext] = true
	}
	return g
}

// resolve returns the absolute, symlink-free form of p, or AccessDenied
// when it falls outside every allowed root.
func (g *guard) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", engine.Errorf(engine.KindInvalidInput, "path is empty")
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.base, abs)
	}
	abs = realPath(filepath.Clean(abs))
	for _, root := range g.roots {
		if within(root, abs) {
			return abs, nil
		}
	}
	return "", engine.Errorf(engine.KindAccessDenied, "path %s is outside the allowed directories", p)
}

// resolveFile resolves p and additionally rejects blocked extensions.
func (g *guard) resolveFile(p string) (string, error) {
	abs, err := g.resolve(p)
	if err != nil {
		return "", err
	}
	if ext := strings.ToLower(filepath.Ext(abs)); g.blocked[ext] {
		return "", engine.Errorf(engine.KindBlocked, "extension %s is blocked: %s", ext, p)
	}
	return abs, nil
}

func (g *guard) checkSize(p string, size int64) error {
	if size > g.maxSize {
		return engine.Errorf(engine.KindTooLarge, "%s is %d bytes, limit is %d", p, size, g.maxSize)
	}
	return nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// realPath evaluates symlinks on the longest existing prefix of p so paths
// that do not exist yet still resolve through linked parents.
func realPath(p string) string {
	rest := ""
	cur := p
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			if rest == "" {
				return resolved
			}
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		if rest == "" {
			rest = filepath.Base(cur)
		} else {
			rest = filepath.Join(filepath.Base(cur), rest)
		}
		cur = parent
	}
}

// classify maps os errors to kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ke *engine.Error
	if errors.As(err, &ke) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return engine.Wrap(engine.KindNotFound, op, err)
	case errors.Is(err, fs.ErrPermission):
		return engine.Wrap(engine.KindAccessDenied, op, err)
	case errors.Is(err, fs.ErrExist):
		return engine.Wrap(engine.KindInvalidInput, op, err)
	}
	return engine.Wrap(engine.KindInternal, op, err)
}

// ResolvePath resolves p the way write methods do, so other tools that write
// to disk share the same allow-list and extension rules.
func (t *Tool) ResolvePath(p string) (string, error) {
	return t.guard.resolveFile(p)
}

// ResolveDir resolves a directory against the allow-list only.
func (t *Tool) ResolveDir(p string) (string, error) {
	return t.guard.resolve(p)
}
