package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]Language{
		"main.go":     LangGo,
		"app.tsx":     LangTypeScript,
		"index.js":    LangJavaScript,
		"script.py":   LangPython,
		"lib.rs":      LangRust,
		"unknown.xyz": LangUnknown,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
	assert.True(t, LangGo.IsCode())
}

func TestWalk_SkipsIgnoredAndHidden(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":                  "package main",
		"pkg/util.go":              "package pkg",
		"node_modules/x/index.js":  "x",
		".hidden/secret.txt":       "s",
		"generated/out.txt":        "g",
		"debug.log":                "l",
		".gitignore":               "generated/\n",
	})

	var seen []string
	err := Walk(context.Background(), root, WalkOptions{}, func(fi FileInfo) error {
		seen = append(seen, fi.Path)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "pkg/util.go"}, seen)
}

func TestWalk_MaxFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})

	count := 0
	err := Walk(context.Background(), root, WalkOptions{MaxFiles: 2}, func(FileInfo) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Walk(ctx, root, WalkOptions{}, func(FileInfo) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectProjectType(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, ProjectTypeUnknown, DetectProjectType(root))

	writeTree(t, root, map[string]string{"package.json": `{"name":"demo"}`})
	assert.Equal(t, ProjectTypeNode, DetectProjectType(root))
}

func TestReadManifest_PackageJSON(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"package.json": `{
		"name": "demo",
		"dependencies": {"express": "^4.18.0"},
		"devDependencies": {"jest": "^29.0.0"},
		"scripts": {"test": "jest"}
	}`})

	m, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeNode, m.Type)
	assert.Equal(t, "demo", m.Name)
	assert.Equal(t, "^4.18.0", m.Dependencies["express"])
	assert.Equal(t, "^29.0.0", m.DevDependencies["jest"])
	assert.Equal(t, "jest", m.Scripts["test"])
}

func TestReadManifest_GoMod(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"go.mod": `module example.com/demo

go 1.22

require (
	github.com/google/uuid v1.6.0
	golang.org/x/sys v0.20.0 // indirect
)
`})

	m, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeGo, m.Type)
	assert.Equal(t, "example.com/demo", m.Name)
	assert.Equal(t, "v1.6.0", m.Dependencies["github.com/google/uuid"])
	assert.Equal(t, "v0.20.0", m.DevDependencies["golang.org/x/sys"])
}

func TestReadManifest_Python(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"requirements.txt": "# deps\nrequests>=2.31\nflask\n-r other.txt\n"})

	m, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, ProjectTypePython, m.Type)
	assert.Equal(t, ">=2.31", m.Dependencies["requests"])
	assert.Contains(t, m.Dependencies, "flask")
	assert.Len(t, m.Dependencies, 2)
}

func TestReadManifest_PyProject(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pyproject.toml": `[project]
name = "demo"
dependencies = ["httpx>=0.27", "rich"]

[project.optional-dependencies]
dev = ["pytest==8.0"]
`})

	m, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Name)
	assert.Equal(t, ">=0.27", m.Dependencies["httpx"])
	assert.Equal(t, "==8.0", m.DevDependencies["pytest"])
}

func TestReadManifest_Cargo(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Cargo.toml": `[package]
name = "demo"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
anyhow = "1"
`})

	m, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeRust, m.Type)
	assert.Equal(t, "1.0", m.Dependencies["serde"])
	assert.Equal(t, "1", m.Dependencies["anyhow"])
}

func TestReadManifest_None(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestIsWellKnownRootFile(t *testing.T) {
	assert.True(t, IsWellKnownRootFile("README.md"))
	assert.True(t, IsWellKnownRootFile("go.mod"))
	assert.True(t, IsWellKnownRootFile("main.py"))
	assert.False(t, IsWellKnownRootFile("helpers.go"))
}
