package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// MockFileSystem fakes FS; unset funcs behave like an empty disk.
type MockFileSystem struct {
	StatFunc      func(name string) (os.FileInfo, error)
	ReadFileFunc  func(name string) ([]byte, error)
	WriteFileFunc func(name string, data []byte, perm os.FileMode) error
	MkdirAllFunc  func(path string, perm os.FileMode) error
	RemoveFunc    func(name string) error
	ReadDirFunc   func(name string) ([]os.DirEntry, error)
	WalkDirFunc   func(root string, fn fs.WalkDirFunc) error
}

func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(name, data, perm)
	}
	return nil
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path, perm)
	}
	return nil
}

func (m *MockFileSystem) Remove(name string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(name)
	}
	return nil
}

func (m *MockFileSystem) RemoveAll(path string) error { return nil }

func (m *MockFileSystem) Rename(oldpath, newpath string) error { return nil }

func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(name)
	}
	return nil, nil
}

func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	if m.WalkDirFunc != nil {
		return m.WalkDirFunc(root, fn)
	}
	return nil
}

func newTestTool(t *testing.T) (*Tool, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Options{BaseDir: dir, Policy: Policy{AllowedRoots: []string{dir}, MaxFileSize: 64}}), dir
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	tool, dir := newTestTool(t)

	res, err := tool.WriteFile("nested/dir/hello.txt", "hello world")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, filepath.Join(dir, "nested", "dir", "hello.txt"), res.Path)

	read, err := tool.ReadFile("nested/dir/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", read.Content)

	again, err := tool.WriteFile("nested/dir/hello.txt", "bye")
	require.NoError(t, err)
	assert.False(t, again.Created)
}

func TestWriteFile_OutsideAllowList(t *testing.T) {
	tool, _ := newTestTool(t)

	_, err := tool.WriteFile("/etc/passwd", "x")
	require.Error(t, err)
	assert.Equal(t, engine.KindAccessDenied, engine.KindOf(err))

	_, err = tool.WriteFile("../escape.txt", "x")
	assert.Equal(t, engine.KindAccessDenied, engine.KindOf(err))
}

func TestSymlinkEscapeDenied(t *testing.T) {
	tool, dir := newTestTool(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	_, err := tool.WriteFile("link/owned.txt", "x")
	assert.Equal(t, engine.KindAccessDenied, engine.KindOf(err))
	_, statErr := os.Stat(filepath.Join(outside, "owned.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBlockedExtension(t *testing.T) {
	tool, _ := newTestTool(t)
	_, err := tool.WriteFile("setup.EXE", "MZ")
	assert.Equal(t, engine.KindBlocked, engine.KindOf(err))
}

func TestSizeBoundary(t *testing.T) {
	tool, dir := newTestTool(t)

	_, err := tool.WriteFile("exact.txt", strings.Repeat("a", 64))
	require.NoError(t, err)

	_, err = tool.WriteFile("over.txt", strings.Repeat("a", 65))
	assert.Equal(t, engine.KindTooLarge, engine.KindOf(err))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte(strings.Repeat("b", 65)), 0o644))
	_, err = tool.ReadFile("big.txt")
	assert.Equal(t, engine.KindTooLarge, engine.KindOf(err))
}

func TestCreateFile_Overwrite(t *testing.T) {
	tool, _ := newTestTool(t)

	_, err := tool.CreateFile("a.txt", "one", false)
	require.NoError(t, err)

	_, err = tool.CreateFile("a.txt", "two", false)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))

	res, err := tool.CreateFile("a.txt", "two", true)
	require.NoError(t, err)
	assert.False(t, res.Created)
}

func TestDeleteFile(t *testing.T) {
	tool, dir := newTestTool(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d", "f.txt"), []byte("x"), 0o644))

	_, err := tool.DeleteFile("d", false)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))

	_, err = tool.DeleteFile("d/f.txt", false)
	require.NoError(t, err)

	_, err = tool.DeleteFile("d/f.txt", false)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

	_, err = tool.DeleteFile(".", true)
	assert.Equal(t, engine.KindAccessDenied, engine.KindOf(err))
}

func TestCopyAndMove(t *testing.T) {
	tool, dir := newTestTool(t)
	_, err := tool.WriteFile("src.txt", "data")
	require.NoError(t, err)

	_, err = tool.CopyFile("src.txt", "copy/dst.txt", false)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "copy", "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = tool.CopyFile("src.txt", "copy/dst.txt", false)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))

	_, err = tool.MoveFile("src.txt", "moved.txt", false)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "src.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestGetStats(t *testing.T) {
	tool, _ := newTestTool(t)

	st, err := tool.GetStats("missing.txt")
	require.NoError(t, err)
	assert.False(t, st.Exists)

	_, err = tool.WriteFile("f.txt", "abc")
	require.NoError(t, err)
	st, err = tool.GetStats("f.txt")
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, "file", st.Type)
	assert.EqualValues(t, 3, st.Size)
	assert.True(t, st.Readable)
	assert.WithinDuration(t, time.Now(), st.Modified, time.Minute)
}

func TestListDirectory(t *testing.T) {
	tool, dir := newTestTool(t)
	for _, p := range []string{"a.txt", "sub/b.txt", ".hidden", "node_modules/x.js"} {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	flat, err := tool.ListDirectory(context.Background(), ".", ListOptions{})
	require.NoError(t, err)
	var names []string
	for _, e := range flat.Entries {
		names = append(names, e.Path)
	}
	assert.ElementsMatch(t, []string{"a.txt", "node_modules", "sub"}, names)

	deep, err := tool.ListDirectory(context.Background(), ".", ListOptions{Recursive: true, Detailed: true})
	require.NoError(t, err)
	names = nil
	for _, e := range deep.Entries {
		names = append(names, e.Path)
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub", "sub/b.txt"}, names)
	assert.NotNil(t, deep.Entries[0].Modified)

	hidden, err := tool.ListDirectory(context.Background(), ".", ListOptions{Hidden: true})
	require.NoError(t, err)
	assert.Len(t, hidden.Entries, 4)
}

func TestSearchFiles(t *testing.T) {
	tool, dir := newTestTool(t)
	for _, p := range []string{"main.go", "pkg/util.go", "pkg/util_test.go", "README.md", "vendor/dep.go"} {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	res, err := tool.SearchFiles(context.Background(), "*.go", ".", SearchOptions{})
	require.NoError(t, err)
	var paths []string
	for _, e := range res.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"main.go", "pkg/util.go", "pkg/util_test.go"}, paths)

	res, err = tool.SearchFiles(context.Background(), "pkg/*_test.go", ".", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	_, err = tool.SearchFiles(context.Background(), "[", ".", SearchOptions{})
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))
}

func TestCheck(t *testing.T) {
	tool, _ := newTestTool(t)

	_, err := tool.Check(MethodWriteFile, []string{"/etc/passwd", "x"})
	assert.Equal(t, engine.KindAccessDenied, engine.KindOf(err))

	_, err = tool.Check(MethodWriteFile, []string{"ok.txt", strings.Repeat("a", 100)})
	assert.Equal(t, engine.KindTooLarge, engine.KindOf(err))

	_, err = tool.Check(MethodListDirectory, nil)
	assert.NoError(t, err)
}

func TestInvoke_Dispatch(t *testing.T) {
	tool, _ := newTestTool(t)
	ctx := context.Background()

	out, err := tool.Invoke(ctx, MethodCreateFile, []string{"x.txt", "hi", "false"})
	require.NoError(t, err)
	assert.True(t, out.(*WriteResult).Created)

	out, err = tool.Invoke(ctx, MethodListDirectory, []string{"", `{"detailed":true}`})
	require.NoError(t, err)
	assert.Len(t, out.(*ListResult).Entries, 1)

	_, err = tool.Invoke(ctx, MethodListDirectory, []string{".", `{bad`})
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))

	_, err = tool.Invoke(ctx, "explode", nil)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))
}

func TestPermissionErrorClassified(t *testing.T) {
	dir := t.TempDir()
	mock := &MockFileSystem{
		WriteFileFunc: func(name string, data []byte, perm os.FileMode) error {
			return &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
		},
	}
	tool := New(Options{FS: mock, BaseDir: dir, Policy: Policy{AllowedRoots: []string{dir}}})

	_, err := tool.WriteFile("locked.txt", "x")
	assert.Equal(t, engine.KindAccessDenied, engine.KindOf(err))
}
