package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/execution"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/filesystem"
)

func TestNewDefaultRegistry_ToolSet(t *testing.T) {
	reg, err := NewDefaultRegistry(Options{Dir: t.TempDir(), Set: ToolSet{Filesystem: true, Analysis: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis", "filesystem"}, reg.Tools())

	reg, err = NewDefaultRegistry(Options{Dir: t.TempDir(), Set: AllTools()})
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis", "exec", "filesystem", "network"}, reg.Tools())
}

func TestNewDefaultRegistry_ExecutesWithinDir(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewDefaultRegistry(Options{Dir: dir, Set: AllTools()})
	require.NoError(t, err)

	write := engine.NewAction(engine.ActionCreateFile, filesystem.Name, filesystem.MethodWriteFile, []string{"hello.txt", "hello world"})
	rec := reg.Execute(context.Background(), write, registry.ExecOptions{})
	require.True(t, rec.Success, rec.Error)

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	outside := engine.NewAction(engine.ActionWriteFile, filesystem.Name, filesystem.MethodWriteFile, []string{"/etc/passwd", "x"})
	rec = reg.Execute(context.Background(), outside, registry.ExecOptions{})
	assert.False(t, rec.Success)
	assert.Equal(t, engine.KindAccessDenied, rec.Kind)

	blocked := engine.NewAction(engine.ActionRunCommand, execution.Name, execution.MethodExecuteCommand, []string{"rm -rf /"})
	v := reg.Validate(blocked)
	assert.False(t, v.Valid)
	assert.Equal(t, engine.KindBlocked, v.Kind)
}
