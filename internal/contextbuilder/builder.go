// Package contextbuilder scans the working directory and produces a
// size-bounded, importance-ranked snapshot for prompt composition.
package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/logging"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/analysis"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

const (
	DefaultMaxContextSize = 50000
	DefaultMaxFiles       = 1000
	DefaultMaxSummaries   = 20
	DefaultRecentFiles    = 10
	DefaultTurns          = 5

	maxSummaryFileSize = 256 * 1024
	maxTurnLength      = 2000
)

// Options configures a Builder.
type Options struct {
	Root           string // defaults to cwd
	MaxContextSize int    // serialized bytes
	Retention      Retention
	MaxFiles       int
	MaxSummaries   int
	CacheTTL       time.Duration
	Logger         *logging.Logger
	Now            func() time.Time
}

// Builder builds context snapshots. Summaries are cached across builds.
type Builder struct {
	root      string
	maxSize   int
	retention Retention
	maxFiles  int
	maxSums   int
	logger    *logging.Logger
	now       func() time.Time
	ignorer   *workspace.Ignorer
	cache     *summaryCache

	mu      sync.Mutex
	watcher *watcher
}

// New creates a Builder.
func New(opts Options) *Builder {
	b := &Builder{
		root:      opts.Root,
		maxSize:   opts.MaxContextSize,
		retention: opts.Retention,
		maxFiles:  opts.MaxFiles,
		maxSums:   opts.MaxSummaries,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if b.root == "" {
		b.root, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(b.root); err == nil {
		b.root = abs
	}
	if b.maxSize <= 0 {
		b.maxSize = DefaultMaxContextSize
	}
	if b.retention == "" {
		b.retention = RetainImportance
	}
	if b.maxFiles <= 0 {
		b.maxFiles = DefaultMaxFiles
	}
	if b.maxSums <= 0 {
		b.maxSums = DefaultMaxSummaries
	}
	if b.logger == nil {
		b.logger = logging.Nop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.ignorer = workspace.NewIgnorer(b.root)
	b.cache = newSummaryCache(opts.CacheTTL, b.now)
	return b
}

// Root returns the scanned directory.
func (b *Builder) Root() string { return b.root }

// Build scans the root and assembles a snapshot no larger than the
// configured budget. history is the conversation so far, oldest first.
func (b *Builder) Build(ctx context.Context, history []Turn) (*Snapshot, error) {
	start := b.now()
	if n := b.cache.evict(); n > 0 {
		b.logger.Debug("context cache evicted", zap.Int("entries", n))
	}

	files, err := b.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", b.root, err)
	}

	s := &Snapshot{
		CreatedAt:    start,
		FileSystem:   FileSystem{Root: b.root, TotalFiles: len(files)},
		Conversation: lastTurns(history, DefaultTurns),
		Environment:  b.environment(),
	}

	descs := make([]FileDescriptor, len(files))
	for i, fi := range files {
		descs[i] = FileDescriptor{
			Path:       fi.Path,
			Size:       fi.Size,
			Modified:   fi.ModTime,
			Type:       fi.Lang,
			Importance: Importance(fi, start),
			order:      i,
		}
	}
	orderFiles(descs, RetainImportance)
	s.FileSystem.Files = descs

	recent := make([]FileDescriptor, len(descs))
	copy(recent, descs)
	orderFiles(recent, RetainRecency)
	if len(recent) > DefaultRecentFiles {
		recent = recent[:DefaultRecentFiles]
	}
	s.FileSystem.Recent = recent

	s.CodeStructure = b.summaries(ctx, descs)
	s.Dependencies = b.dependencies(s.CodeStructure)

	trim(s, b.maxSize, b.retention)

	b.logger.Debug("context built",
		zap.Int("files", len(s.FileSystem.Files)),
		zap.Int("total_files", s.FileSystem.TotalFiles),
		zap.Int("summaries", len(s.CodeStructure)),
		zap.Bool("trimmed", s.Trimmed),
		zap.Duration("duration", b.now().Sub(start)))
	return s, nil
}

func (b *Builder) scan(ctx context.Context) ([]workspace.FileInfo, error) {
	var files []workspace.FileInfo
	err := workspace.Walk(ctx, b.root, workspace.WalkOptions{MaxFiles: b.maxFiles, Ignorer: b.ignorer},
		func(fi workspace.FileInfo) error {
			files = append(files, fi)
			return nil
		})
	return files, err
}

// summaries parses the highest-ranked code files, reusing cached results.
func (b *Builder) summaries(ctx context.Context, files []FileDescriptor) []*analysis.Summary {
	var out []*analysis.Summary
	for _, f := range files {
		if len(out) >= b.maxSums || ctx.Err() != nil {
			break
		}
		if (!f.Type.IsCode() && f.Type != workspace.LangJSON) || f.Size > maxSummaryFileSize {
			continue
		}
		abs := filepath.Join(b.root, filepath.FromSlash(f.Path))
		if s, ok := b.cache.get(abs, f.Modified); ok {
			out = append(out, s)
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		s := analysis.Summarize(abs, data)
		s.Path = f.Path
		b.cache.put(abs, f.Modified, s)
		out = append(out, s)
	}
	return out
}

func (b *Builder) dependencies(summaries []*analysis.Summary) Dependencies {
	var deps Dependencies
	man, err := workspace.ReadManifest(b.root)
	switch {
	case err == nil:
		deps.Manifest = man
	case !errors.Is(err, workspace.ErrNoManifest):
		b.logger.Debug("manifest unreadable", zap.Error(err))
	}
	for _, s := range summaries {
		for _, src := range s.ImportSources() {
			if deps.Imports == nil {
				deps.Imports = make(map[string][]string)
			}
			deps.Imports[src] = append(deps.Imports[src], s.Path)
		}
	}
	return deps
}

func (b *Builder) environment() Environment {
	return Environment{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
		Shell:       os.Getenv("SHELL"),
		Cwd:         b.root,
		ProjectType: workspace.DetectProjectType(b.root),
	}
}

func lastTurns(history []Turn, n int) []Turn {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]Turn, 0, len(history))
	for _, t := range history {
		if len(t.Content) > maxTurnLength {
			cut := maxTurnLength
			for cut > 0 && !utf8.RuneStart(t.Content[cut]) {
				cut--
			}
			t.Content = t.Content[:cut] + "..."
		}
		out = append(out, t)
	}
	return out
}

// Watch starts invalidating cached summaries as files change. It is a no-op
// if already watching.
func (b *Builder) Watch() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return nil
	}
	w, err := newWatcher(b.root, b.ignorer, b.logger, func(paths []string) {
		b.cache.invalidate(paths...)
		b.logger.Debug("context cache invalidated", zap.Int("files", len(paths)))
	})
	if err != nil {
		return err
	}
	if err := w.start(); err != nil {
		_ = w.fsw.Close()
		return err
	}
	b.watcher = w
	return nil
}

// Cleanup stops the watcher and clears the caches. Safe to call repeatedly.
func (b *Builder) Cleanup() error {
	b.mu.Lock()
	w := b.watcher
	b.watcher = nil
	b.mu.Unlock()

	b.cache.clear()
	if w != nil {
		return w.stop()
	}
	return nil
}

// CacheStats reports summary cache usage.
func (b *Builder) CacheStats() CacheStats {
	return b.cache.snapshot()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
