package filesystem

import (
	"errors"
	"io/fs"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// ReadResult is returned by readFile.
type ReadResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// ReadFile reads a whole file. Files larger than the size limit are refused
// without being read.
func (t *Tool) ReadFile(path string) (*ReadResult, error) {
	abs, err := t.guard.resolveFile(path)
	if err != nil {
		return nil, err
	}
	info, err := t.fs.Stat(abs)
	if err != nil {
		return nil, classify("readFile", err)
	}
	if info.IsDir() {
		return nil, engine.Errorf(engine.KindInvalidInput, "%s is a directory", path)
	}
	if err := t.guard.checkSize(path, info.Size()); err != nil {
		return nil, err
	}
	data, err := t.fs.ReadFile(abs)
	if err != nil {
		return nil, classify("readFile", err)
	}
	return &ReadResult{Path: abs, Content: string(data), Size: int64(len(data))}, nil
}

// Stats is returned by getStats.
type Stats struct {
	Exists   bool      `json:"exists"`
	Path     string    `json:"path,omitempty"`
	Type     string    `json:"type,omitempty"` // file, directory, other
	Size     int64     `json:"size,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Modified time.Time `json:"modified,omitempty"`
	Readable bool      `json:"readable"`
	Writable bool      `json:"writable"`
}

// GetStats describes path. A missing path is not an error.
func (t *Tool) GetStats(path string) (*Stats, error) {
	abs, err := t.guard.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := t.fs.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return &Stats{Exists: false, Path: abs}, nil
	}
	if err != nil {
		return nil, classify("getStats", err)
	}
	typ := "other"
	switch {
	case info.IsDir():
		typ = "directory"
	case info.Mode().IsRegular():
		typ = "file"
	}
	perm := info.Mode().Perm()
	return &Stats{
		Exists:   true,
		Path:     abs,
		Type:     typ,
		Size:     info.Size(),
		Mode:     perm.String(),
		Modified: info.ModTime(),
		Readable: perm&0o444 != 0,
		Writable: perm&0o222 != 0,
	}, nil
}
