package conversation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// Field names a searchable part of a conversation.
type Field string

const (
	FieldInput     Field = "input"
	FieldMessages  Field = "messages"
	FieldReasoning Field = "reasoning"
	FieldActions   Field = "actions"
)

const (
	defaultSearchLimit  = 10
	defaultHistoryLimit = 50
	snippetRadius       = 40
)

// SearchOptions tunes Search. In defaults to input and messages.
type SearchOptions struct {
	In            []Field
	CaseSensitive bool // ignored by full-text search
	Limit         int
	FullText      bool // rank with the bleve index instead of substring matching
}

// Match is one hit inside a conversation.
type Match struct {
	In      Field  `json:"in"`
	Index   int    `json:"index"` // message, reasoning or action index; 0 for input
	Snippet string `json:"snippet"`
}

// SearchResult groups the matches found in one conversation.
type SearchResult struct {
	Conversation Meta    `json:"conversation"`
	Score        float64 `json:"score"`
	Matches      []Match `json:"matches"`
}

// Search finds conversations containing query, best first.
func (s *Store) Search(q string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(q) == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "search query is empty")
	}
	in := opts.In
	if len(in) == 0 {
		in = []Field{FieldInput, FieldMessages}
	}
	for _, f := range in {
		switch f {
		case FieldInput, FieldMessages, FieldReasoning, FieldActions:
		default:
			return nil, engine.Errorf(engine.KindInvalidInput, "unknown search field %q", f)
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var (
		out []SearchResult
		err error
	)
	if opts.FullText {
		out, err = s.fullTextSearch(q, in, limit)
	} else {
		out = s.substringSearch(q, in, opts.CaseSensitive)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Conversation.UpdatedAt.After(out[j].Conversation.UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// texts lists the searchable strings of c for one field.
func texts(c *Conversation, f Field) []string {
	switch f {
	case FieldInput:
		return []string{c.Input}
	case FieldMessages:
		out := make([]string, len(c.Messages))
		for i, m := range c.Messages {
			out[i] = m.Content
		}
		return out
	case FieldReasoning:
		out := make([]string, len(c.Reasoning))
		for i, r := range c.Reasoning {
			out[i] = r.Explanation + "\n" + strings.Join(r.Decisions, "\n")
		}
		return out
	case FieldActions:
		out := make([]string, len(c.Actions))
		for i, a := range c.Actions {
			out[i] = fmt.Sprintf("%s %s.%s %s", a.Action.Type, a.Action.Tool, a.Action.Method, strings.Join(a.Action.Params, " "))
		}
		return out
	}
	return nil
}

func (s *Store) substringSearch(q string, in []Field, caseSensitive bool) []SearchResult {
	// Matching runs on the original text so offsets stay valid for slicing.
	var fold *regexp.Regexp
	if !caseSensitive {
		fold = regexp.MustCompile("(?i)" + regexp.QuoteMeta(q))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SearchResult
	for _, c := range s.convs {
		var matches []Match
		for _, f := range in {
			for i, text := range texts(c, f) {
				pos, n := -1, len(q)
				if fold != nil {
					if loc := fold.FindStringIndex(text); loc != nil {
						pos, n = loc[0], loc[1]-loc[0]
					}
				} else {
					pos = strings.Index(text, q)
				}
				if pos >= 0 {
					matches = append(matches, Match{In: f, Index: i, Snippet: snippet(text, pos, n)})
				}
			}
		}
		if len(matches) > 0 {
			out = append(out, SearchResult{Conversation: c.meta(), Score: float64(len(matches)), Matches: matches})
		}
	}
	return out
}

// snippet returns text around [pos, pos+n) collapsed to one line. Bounds are
// moved onto rune boundaries.
func snippet(text string, pos, n int) string {
	start := max(0, min(pos-snippetRadius, len(text)))
	end := max(start, min(pos+n+snippetRadius, len(text)))
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	out := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}

// buildIndexMapping keeps identifiers exact and analyzes content.
func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	for _, name := range []string{"conv_id", "field", "idx"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		f.Index = true
		doc.AddFieldMappingsAt(name, f)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = true
	content.Index = true
	doc.AddFieldMappingsAt("content", content)

	im.DefaultMapping = doc
	return im
}

func docID(convID string, f Field, i int) string {
	return fmt.Sprintf("%s/%s/%d", convID, f, i)
}

// ensureIndex builds the in-memory index from every loaded conversation.
// Callers hold s.mu for writing.
func (s *Store) ensureIndex() error {
	if s.index != nil {
		return nil
	}
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create search index: %w", err)
	}
	batch := idx.NewBatch()
	for _, c := range s.convs {
		for _, f := range []Field{FieldInput, FieldMessages, FieldReasoning, FieldActions} {
			for i, text := range texts(c, f) {
				if err := batch.Index(docID(c.ID, f, i), indexDoc(c.ID, f, i, text)); err != nil {
					_ = idx.Close()
					return fmt.Errorf("failed to index conversation %s: %w", c.ID, err)
				}
			}
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to build search index: %w", err)
	}
	s.index = idx
	return nil
}

func indexDoc(convID string, f Field, i int, text string) map[string]interface{} {
	return map[string]interface{}{
		"conv_id": convID,
		"field":   string(f),
		"idx":     fmt.Sprint(i),
		"content": text,
	}
}

// indexConversation adds a new conversation to a built index. Callers hold
// s.mu.
func (s *Store) indexConversation(c *Conversation) {
	if s.index == nil {
		return
	}
	for _, f := range []Field{FieldInput, FieldMessages} {
		for i, text := range texts(c, f) {
			s.indexText(c.ID, f, i, text)
		}
	}
}

func (s *Store) indexMessage(convID string, i int, m Message) {
	s.indexText(convID, FieldMessages, i, m.Content)
}

func (s *Store) indexText(convID string, f Field, i int, text string) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(docID(convID, f, i), indexDoc(convID, f, i, text)); err != nil {
		// A stale index is rebuilt on the next full-text search.
		s.logger.Warn("search index update failed", zap.String("conversation", convID), zap.Error(err))
		_ = s.index.Close()
		s.index = nil
	}
}

// resetIndex drops the whole index; it is rebuilt lazily. Callers hold s.mu.
func (s *Store) resetIndex() {
	if s.index != nil {
		_ = s.index.Close()
		s.index = nil
	}
}

func (s *Store) fullTextSearch(q string, in []Field, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Reasoning and actions change through Update, which does not index
	// incrementally, so those fields force a rebuild.
	for _, f := range in {
		if f == FieldReasoning || f == FieldActions {
			s.resetIndex()
			break
		}
	}
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}

	match := bleve.NewMatchQuery(q)
	match.SetField("content")
	fields := make([]query.Query, 0, len(in))
	for _, f := range in {
		tq := bleve.NewTermQuery(string(f))
		tq.SetField("field")
		fields = append(fields, tq)
	}
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, bleve.NewDisjunctionQuery(fields...)))
	req.Size = limit * 20
	req.Fields = []string{"conv_id", "field", "idx", "content"}

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}

	byConv := make(map[string]*SearchResult)
	var order []string
	for _, hit := range res.Hits {
		id, _ := hit.Fields["conv_id"].(string)
		c, ok := s.convs[id]
		if !ok {
			continue
		}
		r, ok := byConv[id]
		if !ok {
			r = &SearchResult{Conversation: c.meta()}
			byConv[id] = r
			order = append(order, id)
		}
		r.Score += hit.Score
		field, _ := hit.Fields["field"].(string)
		var idx int
		if raw, _ := hit.Fields["idx"].(string); raw != "" {
			_, _ = fmt.Sscan(raw, &idx)
		}
		content, _ := hit.Fields["content"].(string)
		r.Matches = append(r.Matches, Match{In: Field(field), Index: idx, Snippet: snippet(content, 0, 0)})
	}

	out := make([]SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byConv[id])
	}
	return out, nil
}

// HistoryOptions filters and orders History.
type HistoryOptions struct {
	Limit     int
	AgentID   string
	Status    Status
	SortBy    string // createdAt (default: updatedAt) or messages
	SortOrder string // asc or desc (default)
}

// History lists conversations matching opts.
func (s *Store) History(opts HistoryOptions) ([]Meta, error) {
	var less func(a, b *Conversation) bool
	switch opts.SortBy {
	case "", "updatedAt":
		less = func(a, b *Conversation) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "createdAt":
		less = func(a, b *Conversation) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "messages":
		less = func(a, b *Conversation) bool { return len(a.Messages) < len(b.Messages) }
	default:
		return nil, engine.Errorf(engine.KindInvalidInput, "unknown sort field %q", opts.SortBy)
	}
	desc := true
	switch opts.SortOrder {
	case "", "desc":
	case "asc":
		desc = false
	default:
		return nil, engine.Errorf(engine.KindInvalidInput, "unknown sort order %q", opts.SortOrder)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	s.mu.RLock()
	var picked []*Conversation
	for _, c := range s.convs {
		if opts.AgentID != "" && c.AgentID != opts.AgentID {
			continue
		}
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		picked = append(picked, c)
	}
	sort.SliceStable(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if !less(a, b) && !less(b, a) {
			return a.ID < b.ID
		}
		if desc {
			return less(b, a)
		}
		return less(a, b)
	})
	if len(picked) > limit {
		picked = picked[:limit]
	}
	out := make([]Meta, len(picked))
	for i, c := range picked {
		out[i] = c.meta()
	}
	s.mu.RUnlock()
	return out, nil
}
