package conversation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T, dir string) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	s, err := Open(Options{Dir: dir, SessionID: "session-a", Now: c.now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func contents(c *Conversation) []string {
	out := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = m.Content
	}
	return out
}

func TestStart_AddsInputAsFirstMessage(t *testing.T) {
	s, _ := newStore(t, t.TempDir())

	c, err := s.Start(StartOptions{Input: "create hello.txt", AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, RoleUser, c.Messages[0].Role)
	assert.Equal(t, 1, c.Counters.Messages)

	_, err = os.Stat(filepath.Join(s.dir, "session-a", c.ID+".json"))
	assert.NoError(t, err)
}

func TestAddMessage_PreservesOrder(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	c, err := s.Start(StartOptions{Input: "m0"})
	require.NoError(t, err)

	for _, text := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.AddMessage(c.ID, Message{Role: RoleAssistant, Content: text}))
	}
	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, contents(got))
	assert.Equal(t, 4, got.Counters.Messages)

	err = s.AddMessage(c.ID, Message{Role: "robot", Content: "x"})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	err = s.AddMessage("missing", Message{Role: RoleUser, Content: "x"})
	assert.True(t, engine.IsKind(err, engine.KindNotFound))
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	c, err := s.Start(StartOptions{Input: "original"})
	require.NoError(t, err)

	c.Messages[0].Content = "tampered"
	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Messages[0].Content)
}

func TestUpdate_FoldsCounters(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	c, err := s.Start(StartOptions{Input: "go"})
	require.NoError(t, err)

	ok := engine.ExecutionRecord{Tool: "filesystem", Method: "writeFile", Success: true}
	failed := engine.ExecutionRecord{Tool: "exec", Method: "executeCommand", Error: "exit status 1"}
	err = s.Update(c.ID, Update{
		Reasoning: &Reasoning{Effort: "medium", Explanation: "two actions", Decisions: []string{"write", "run"}},
		Actions: []ActionRecord{
			{Action: engine.NewAction(engine.ActionWriteFile, "filesystem", "writeFile", []string{"a.txt", "x"}), Outcome: &ok},
			{Action: engine.NewAction(engine.ActionRunCommand, "exec", "executeCommand", []string{"false"}), Outcome: &failed},
			{Action: engine.NewAction(engine.ActionReadFile, "filesystem", "readFile", []string{"b.txt"})},
		},
		Duration:   1500 * time.Millisecond,
		ContextRef: "ctx-1",
	})
	require.NoError(t, err)

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reasoning, 1)
	assert.Len(t, got.Actions, 3)
	assert.Equal(t, 2, got.Counters.ToolCalls)
	assert.Equal(t, 1, got.Counters.Errors)
	assert.Equal(t, 1500*time.Millisecond, got.Counters.TotalDuration)
	assert.Equal(t, "ctx-1", got.ContextRef)
	assert.False(t, got.Actions[0].Timestamp.IsZero())
}

func TestCreateBranch(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	parent, err := s.Start(StartOptions{Input: "p0"})
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(parent.ID, Message{Role: RoleAssistant, Content: "p1", Metadata: map[string]string{"model": "m"}}))
	require.NoError(t, s.AddMessage(parent.ID, Message{Role: RoleUser, Content: "p2"}))
	require.NoError(t, s.AddMessage(parent.ID, Message{Role: RoleAssistant, Content: "p3"}))

	for k := 0; k <= 4; k++ {
		b, err := s.CreateBranch(parent.ID, k, "fork")
		require.NoError(t, err, "k=%d", k)
		p, _ := s.Get(parent.ID)

		require.Len(t, b.Messages, k+1)
		assert.Equal(t, p.Messages[:k], b.Messages[:k])
		assert.Equal(t, "fork", b.Messages[k].Content)
		assert.Equal(t, RoleUser, b.Messages[k].Role)
		assert.Equal(t, parent.ID, b.ParentID)
		require.NotNil(t, b.BranchPoint)
		assert.Equal(t, k, *b.BranchPoint)
	}

	_, err = s.CreateBranch(parent.ID, 5, "too far")
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	_, err = s.CreateBranch(parent.ID, -1, "negative")
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	_, err = s.CreateBranch("nope", 0, "x")
	assert.True(t, engine.IsKind(err, engine.KindNotFound))

	bp := 1
	b, err := s.Start(StartOptions{Input: "via start", ParentID: parent.ID, BranchPoint: &bp})
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "via start"}, contents(b))
	_, err = s.Start(StartOptions{Input: "x", ParentID: parent.ID})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
}

func TestEnd_Idempotent(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	c, err := s.Start(StartOptions{Input: "x"})
	require.NoError(t, err)

	require.NoError(t, s.End(c.ID, "completed"))
	first, _ := s.Get(c.ID)
	require.NoError(t, s.End(c.ID, "completed"))
	require.NoError(t, s.End(c.ID, ReasonShutdown))
	second, _ := s.Get(c.ID)

	assert.Equal(t, StatusEnded, second.Status)
	assert.Equal(t, first, second)
	assert.Error(t, s.AddMessage(c.ID, Message{Role: RoleUser, Content: "late"}))
}

func TestEndActive_UsesShutdownStatus(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	a, _ := s.Start(StartOptions{Input: "a"})
	b, _ := s.Start(StartOptions{Input: "b"})
	require.NoError(t, s.End(b.ID, "done"))

	ids, err := s.EndActive(ReasonShutdown)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusShutdown, got.Status)
	got, _ = s.Get(b.ID)
	assert.Equal(t, StatusEnded, got.Status)
}

func TestReload_StructurallyEqual(t *testing.T) {
	dir := t.TempDir()
	s, _ := newStore(t, dir)
	c, err := s.Start(StartOptions{Input: "persist me", AgentID: "agent"})
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(c.ID, Message{Role: RoleAssistant, Content: "ok", Metadata: map[string]string{"provider": "claude"}}))
	rec := engine.ExecutionRecord{ID: "r1", Tool: "filesystem", Method: "readFile", Success: true, Duration: time.Millisecond, Timestamp: time.Date(2025, 3, 1, 9, 0, 5, 0, time.UTC)}
	require.NoError(t, s.Update(c.ID, Update{
		Reasoning: &Reasoning{Explanation: "read it"},
		Actions:   []ActionRecord{{Action: engine.NewAction(engine.ActionReadFile, "filesystem", "readFile", []string{"x"}), Outcome: &rec}},
	}))
	require.NoError(t, s.End(c.ID, "done"))
	want, err := s.Get(c.ID)
	require.NoError(t, err)

	reopened, err := Open(Options{Dir: dir, SessionID: "session-b"})
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpen_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old", "broken.json"), []byte("{not json"), 0o644))

	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.List())
	assert.NotEmpty(t, s.SessionID())
}

func TestSearch_Substring(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	a, _ := s.Start(StartOptions{Input: "Deploy the API"})
	require.NoError(t, s.AddMessage(a.ID, Message{Role: RoleAssistant, Content: "The api is deployed."}))
	b, _ := s.Start(StartOptions{Input: "write docs"})
	require.NoError(t, s.Update(b.ID, Update{Reasoning: &Reasoning{Explanation: "mention the API"}}))

	res, err := s.Search("api", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, a.ID, res[0].Conversation.ID)
	// Input plus both messages.
	assert.Len(t, res[0].Matches, 3)

	res, err = s.Search("api", SearchOptions{CaseSensitive: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Len(t, res[0].Matches, 1)
	assert.Equal(t, FieldMessages, res[0].Matches[0].In)
	assert.Equal(t, 1, res[0].Matches[0].Index)

	res, err = s.Search("API", SearchOptions{In: []Field{FieldReasoning}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, b.ID, res[0].Conversation.ID)

	_, err = s.Search("  ", SearchOptions{})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	_, err = s.Search("x", SearchOptions{In: []Field{"body"}})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
}

func TestSearch_NonASCIICaseFold(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	c, err := s.Start(StartOptions{Input: strings.Repeat("İ", 100) + "foo"})
	require.NoError(t, err)

	res, err := s.Search("FOO", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, c.ID, res[0].Conversation.ID)
	snip := res[0].Matches[0].Snippet
	assert.True(t, strings.HasPrefix(snip, "..."))
	assert.True(t, strings.HasSuffix(snip, "foo"))
	assert.True(t, utf8.ValidString(snip))

	res, err = s.Search("ü", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSnippet_RuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 60) + "needle" + strings.Repeat("ж", 60)
	pos := strings.Index(text, "needle")
	out := snippet(text, pos, len("needle"))
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "needle")
	assert.Equal(t, "", snippet("", 10, 3))
}

func TestSearch_FullText(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	a, _ := s.Start(StartOptions{Input: "configure the database connection"})
	b, _ := s.Start(StartOptions{Input: "fix the login page"})

	res, err := s.Search("database", SearchOptions{FullText: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, a.ID, res[0].Conversation.ID)
	assert.Greater(t, res[0].Score, 0.0)

	// Messages added after the index exists are searchable.
	require.NoError(t, s.AddMessage(b.ID, Message{Role: RoleAssistant, Content: "The database schema needs a users table."}))
	c, _ := s.Start(StartOptions{Input: "database backups"})

	res, err = s.Search("database", SearchOptions{FullText: true, Limit: 10})
	require.NoError(t, err)
	ids := make([]string, 0, len(res))
	for _, r := range res {
		ids = append(ids, r.Conversation.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID}, ids)

	res, err = s.Search("database", SearchOptions{FullText: true, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestAddMessage_FailedWriteIsNotIndexed(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	c, err := s.Start(StartOptions{Input: "plan the release"})
	require.NoError(t, err)
	_, err = s.Search("release", SearchOptions{FullText: true})
	require.NoError(t, err)

	// A non-empty directory in place of the file makes the rename fail.
	path := s.files[c.ID]
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o755))

	err = s.AddMessage(c.ID, Message{Role: RoleAssistant, Content: "unsaved zeppelin notes"})
	require.Error(t, err)

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)

	res, err := s.Search("zeppelin", SearchOptions{FullText: true})
	require.NoError(t, err)
	assert.Empty(t, res)
	res, err = s.Search("zeppelin", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestHistory(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	a, _ := s.Start(StartOptions{Input: "a", AgentID: "x"})
	b, _ := s.Start(StartOptions{Input: "b", AgentID: "y"})
	c, _ := s.Start(StartOptions{Input: "c", AgentID: "x"})
	require.NoError(t, s.AddMessage(a.ID, Message{Role: RoleAssistant, Content: "more"}))
	require.NoError(t, s.End(b.ID, "done"))

	ids := func(ms []Meta) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	h, err := s.History(HistoryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, ids(h))

	h, err = s.History(HistoryOptions{SortBy: "createdAt", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(h))

	h, err = s.History(HistoryOptions{AgentID: "x", SortBy: "messages", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(h))

	h, err = s.History(HistoryOptions{Status: StatusEnded})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(h))

	_, err = s.History(HistoryOptions{SortBy: "size"})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	_, err = s.History(HistoryOptions{SortOrder: "sideways"})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))

	assert.Equal(t, ids(s.List()), []string{b.ID, a.ID, c.ID})
}

func TestCleanup_KeepsActiveAndRecent(t *testing.T) {
	dir := t.TempDir()
	s, clk := newStore(t, dir)
	old, _ := s.Start(StartOptions{Input: "old"})
	require.NoError(t, s.End(old.ID, "done"))
	stillActive, _ := s.Start(StartOptions{Input: "active"})

	clk.t = clk.t.Add(40 * 24 * time.Hour)
	fresh, _ := s.Start(StartOptions{Input: "fresh"})
	require.NoError(t, s.End(fresh.ID, "done"))

	stale := filepath.Join(dir, "stale-session")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "session.log"), []byte("{}\n"), 0o644))
	past := clk.t.Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(stale, "session.log"), past, past))

	n, err := s.Cleanup(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(old.ID)
	assert.True(t, engine.IsKind(err, engine.KindNotFound))
	_, err = s.Get(stillActive.ID)
	assert.NoError(t, err)
	_, err = s.Get(fresh.ID)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "session-a", old.ID+".json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
