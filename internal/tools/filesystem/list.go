package filesystem

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

const defaultListLimit = 1000

// ListOptions tunes listDirectory.
type ListOptions struct {
	Recursive bool `json:"recursive"`
	Hidden    bool `json:"hidden"`
	Detailed  bool `json:"detailed"`
	MaxDepth  int  `json:"maxDepth"` // 0 = unlimited
	Limit     int  `json:"limit"`
}

// Entry is one listed path.
type Entry struct {
	Path     string     `json:"path"` // relative to the listed directory
	IsDir    bool       `json:"isDir"`
	Size     int64      `json:"size,omitempty"`
	Modified *time.Time `json:"modified,omitempty"`
	Mode     string     `json:"mode,omitempty"`
}

// ListResult is returned by listDirectory and searchFiles.
type ListResult struct {
	Root      string  `json:"root"`
	Entries   []Entry `json:"entries"`
	Truncated bool    `json:"truncated,omitempty"`
}

// ListDirectory lists path, optionally recursing. Recursive listings skip
// ignored directories such as node_modules and .git.
func (t *Tool) ListDirectory(ctx context.Context, path string, opts ListOptions) (*ListResult, error) {
	abs, err := t.guard.resolve(path)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	res := &ListResult{Root: abs, Entries: []Entry{}}

	if !opts.Recursive {
		entries, err := t.fs.ReadDir(abs)
		if err != nil {
			return nil, classify("listDirectory", err)
		}
		for _, d := range entries {
			if !opts.Hidden && strings.HasPrefix(d.Name(), ".") {
				continue
			}
			if len(res.Entries) >= limit {
				res.Truncated = true
				break
			}
			res.Entries = append(res.Entries, entryFor(d.Name(), d, opts.Detailed))
		}
		return res, nil
	}

	ign := workspace.NewIgnorer(abs)
	err = t.fs.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(abs, p)
		if relErr != nil || rel == "." {
			return nil
		}
		if ign.Ignored(rel) || (!opts.Hidden && workspace.IsHidden(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(res.Entries) >= limit {
			res.Truncated = true
			return fs.SkipAll
		}
		res.Entries = append(res.Entries, entryFor(filepath.ToSlash(rel), d, opts.Detailed))
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, classify("listDirectory", err)
	}
	return res, nil
}

func entryFor(rel string, d fs.DirEntry, detailed bool) Entry {
	e := Entry{Path: rel, IsDir: d.IsDir()}
	if !detailed {
		return e
	}
	if info, err := d.Info(); err == nil {
		mod := info.ModTime()
		e.Size = info.Size()
		e.Modified = &mod
		e.Mode = info.Mode().String()
	}
	return e
}

// SearchOptions tunes searchFiles.
type SearchOptions struct {
	Hidden bool `json:"hidden"`
	Limit  int  `json:"limit"`
}

// SearchFiles returns files under root whose relative path matches the
// doublestar glob. Patterns without a slash match at any depth.
func (t *Tool) SearchFiles(ctx context.Context, pattern, root string, opts SearchOptions) (*ListResult, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, engine.Errorf(engine.KindInvalidInput, "invalid glob pattern %q", pattern)
	}
	abs, err := t.guard.resolve(root)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(pattern, "/") {
		pattern = "**/" + pattern
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	res := &ListResult{Root: abs, Entries: []Entry{}}
	err = workspace.Walk(ctx, abs, workspace.WalkOptions{IncludeHidden: opts.Hidden}, func(fi workspace.FileInfo) error {
		if ok, _ := doublestar.Match(pattern, fi.Path); !ok {
			return nil
		}
		if len(res.Entries) >= limit {
			res.Truncated = true
			return fs.SkipAll
		}
		mod := fi.ModTime
		res.Entries = append(res.Entries, Entry{Path: fi.Path, Size: fi.Size, Modified: &mod})
		return nil
	})
	if err != nil {
		return nil, classify("searchFiles", err)
	}
	sort.Slice(res.Entries, func(i, j int) bool { return res.Entries[i].Path < res.Entries[j].Path })
	return res, nil
}
