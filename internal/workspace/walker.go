package workspace

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string    `json:"path"` // relative to the walk root, slash separated
	AbsPath string    `json:"-"`
	Lang    Language  `json:"lang,omitempty"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// WalkOptions tunes a walk.
type WalkOptions struct {
	IncludeHidden bool
	MaxFiles      int // 0 = unlimited
	Ignorer       *Ignorer
}

// WalkFunc is called for every file that survives the ignore rules. Returning
// fs.SkipAll stops the walk without error.
type WalkFunc func(fi FileInfo) error

// Walk visits every non-ignored regular file under root in lexical order.
// Symlinks are not followed.
func Walk(ctx context.Context, root string, opts WalkOptions, fn WalkFunc) error {
	ign := opts.Ignorer
	if ign == nil {
		ign = NewIgnorer(root)
	}
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped.
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if ign.Ignored(rel) || (!opts.IncludeHidden && IsHidden(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if opts.MaxFiles > 0 && count >= opts.MaxFiles {
			return fs.SkipAll
		}
		count++
		return fn(FileInfo{
			Path:    filepath.ToSlash(rel),
			AbsPath: path,
			Lang:    DetectLanguage(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
	if err == fs.SkipAll {
		return nil
	}
	return err
}
