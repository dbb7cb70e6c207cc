package filesystem

import (
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// DeleteResult is returned by deleteFile.
type DeleteResult struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// DeleteFile removes a file. Directories require recursive.
func (t *Tool) DeleteFile(path string, recursive bool) (*DeleteResult, error) {
	abs, err := t.guard.resolveFile(path)
	if err != nil {
		return nil, err
	}
	for _, root := range t.guard.roots {
		if abs == root {
			return nil, engine.Errorf(engine.KindAccessDenied, "refusing to delete allowed root %s", path)
		}
	}
	info, err := t.fs.Stat(abs)
	if err != nil {
		return nil, classify("deleteFile", err)
	}
	if info.IsDir() {
		if !recursive {
			return nil, engine.Errorf(engine.KindInvalidInput, "%s is a directory; set recursive to delete it", path)
		}
		if err := t.fs.RemoveAll(abs); err != nil {
			return nil, classify("deleteFile", err)
		}
		return &DeleteResult{Path: abs, Deleted: true}, nil
	}
	if err := t.fs.Remove(abs); err != nil {
		return nil, classify("deleteFile", err)
	}
	return &DeleteResult{Path: abs, Deleted: true}, nil
}
