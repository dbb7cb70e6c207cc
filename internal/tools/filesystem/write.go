package filesystem

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// WriteResult is returned by every method that produces a file.
type WriteResult struct {
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
	Created bool   `json:"created"` // false when an existing file was replaced
}

// WriteFile writes content to path, creating parent directories.
func (t *Tool) WriteFile(path, content string) (*WriteResult, error) {
	return t.write("writeFile", path, content, true)
}

// CreateFile is WriteFile that refuses to replace an existing file unless
// overwrite is set.
func (t *Tool) CreateFile(path, content string, overwrite bool) (*WriteResult, error) {
	return t.write("createFile", path, content, overwrite)
}

func (t *Tool) write(op, path, content string, overwrite bool) (*WriteResult, error) {
	abs, err := t.guard.resolveFile(path)
	if err != nil {
		return nil, err
	}
	if err := t.guard.checkSize(path, int64(len(content))); err != nil {
		return nil, err
	}
	existed, err := t.exists(abs)
	if err != nil {
		return nil, classify(op, err)
	}
	if existed && !overwrite {
		return nil, engine.Errorf(engine.KindInvalidInput, "%s already exists", path)
	}
	if err := t.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, classify(op, err)
	}
	if err := t.fs.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, classify(op, err)
	}
	return &WriteResult{Path: abs, Bytes: len(content), Created: !existed}, nil
}

// DirResult is returned by createDirectory.
type DirResult struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
}

// CreateDirectory creates path and its parents. An existing directory is
// not an error.
func (t *Tool) CreateDirectory(path string) (*DirResult, error) {
	abs, err := t.guard.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := t.fs.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			return nil, engine.Errorf(engine.KindInvalidInput, "%s exists and is not a directory", path)
		}
		return &DirResult{Path: abs}, nil
	}
	if err := t.fs.MkdirAll(abs, 0o755); err != nil {
		return nil, classify("createDirectory", err)
	}
	return &DirResult{Path: abs, Created: true}, nil
}

// CopyFile copies a regular file.
func (t *Tool) CopyFile(src, dst string, overwrite bool) (*WriteResult, error) {
	srcAbs, dstAbs, existed, err := t.transfer("copyFile", src, dst, overwrite)
	if err != nil {
		return nil, err
	}
	info, err := t.fs.Stat(srcAbs)
	if err != nil {
		return nil, classify("copyFile", err)
	}
	data, err := t.fs.ReadFile(srcAbs)
	if err != nil {
		return nil, classify("copyFile", err)
	}
	if err := t.fs.WriteFile(dstAbs, data, info.Mode().Perm()); err != nil {
		return nil, classify("copyFile", err)
	}
	return &WriteResult{Path: dstAbs, Bytes: len(data), Created: !existed}, nil
}

// MoveFile renames src to dst.
func (t *Tool) MoveFile(src, dst string, overwrite bool) (*WriteResult, error) {
	srcAbs, dstAbs, existed, err := t.transfer("moveFile", src, dst, overwrite)
	if err != nil {
		return nil, err
	}
	info, err := t.fs.Stat(srcAbs)
	if err != nil {
		return nil, classify("moveFile", err)
	}
	if err := t.fs.Rename(srcAbs, dstAbs); err != nil {
		return nil, classify("moveFile", err)
	}
	return &WriteResult{Path: dstAbs, Bytes: int(info.Size()), Created: !existed}, nil
}

// transfer runs the checks shared by copy and move and prepares the
// destination directory.
func (t *Tool) transfer(op, src, dst string, overwrite bool) (string, string, bool, error) {
	srcAbs, err := t.guard.resolveFile(src)
	if err != nil {
		return "", "", false, err
	}
	dstAbs, err := t.guard.resolveFile(dst)
	if err != nil {
		return "", "", false, err
	}
	info, err := t.fs.Stat(srcAbs)
	if err != nil {
		return "", "", false, classify(op, err)
	}
	if info.IsDir() {
		return "", "", false, engine.Errorf(engine.KindInvalidInput, "%s is a directory", src)
	}
	if err := t.guard.checkSize(src, info.Size()); err != nil {
		return "", "", false, err
	}
	existed, err := t.exists(dstAbs)
	if err != nil {
		return "", "", false, classify(op, err)
	}
	if existed && !overwrite {
		return "", "", false, engine.Errorf(engine.KindInvalidInput, "%s already exists", dst)
	}
	if err := t.fs.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return "", "", false, classify(op, err)
	}
	return srcAbs, dstAbs, existed, nil
}

func (t *Tool) exists(abs string) (bool, error) {
	_, err := t.fs.Stat(abs)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
