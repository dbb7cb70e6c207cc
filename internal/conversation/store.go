// Package conversation persists conversations as one JSON file each, grouped
// in a directory per session.
package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
)

// DefaultRetention is how long ended conversations are kept by Cleanup.
const DefaultRetention = 30 * 24 * time.Hour

// Options configures a Store.
type Options struct {
	Dir       string // root holding one directory per session
	SessionID string // new conversations are written under Dir/SessionID
	Logger    *logging.Logger
	Now       func() time.Time
}

// Store holds every conversation found under Dir in memory and writes each
// mutation through to disk.
type Store struct {
	dir       string
	sessionID string
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.RWMutex
	convs map[string]*Conversation
	files map[string]string // conversation id -> file path
	index bleve.Index       // built on first full-text search
}

// Open creates the session directory and loads all existing conversations.
// Unreadable files are skipped.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("conversation store directory is required")
	}
	s := &Store{
		dir:       opts.Dir,
		sessionID: opts.SessionID,
		logger:    opts.Logger,
		now:       opts.Now,
		convs:     make(map[string]*Conversation),
		files:     make(map[string]string),
	}
	if s.sessionID == "" {
		s.sessionID = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if err := os.MkdirAll(s.sessionDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) sessionDir() string {
	return filepath.Join(s.dir, s.sessionID)
}

// SessionID returns the id new conversations are filed under.
func (s *Store) SessionID() string { return s.sessionID }

func (s *Store) load() error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*", "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var c Conversation
		if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
			s.logger.Debug("skipping unreadable conversation", zap.String("path", path), zap.Error(err))
			continue
		}
		s.convs[c.ID] = &c
		s.files[c.ID] = path
	}
	return nil
}

// StartOptions describes a new conversation.
type StartOptions struct {
	Input       string
	AgentID     string
	ParentID    string
	BranchPoint *int // required with ParentID
	ContextRef  string
}

// Start creates a conversation. A non-empty input becomes the first user
// message. With a ParentID it creates a branch instead.
func (s *Store) Start(opts StartOptions) (*Conversation, error) {
	if opts.ParentID != "" {
		if opts.BranchPoint == nil {
			return nil, engine.Errorf(engine.KindInvalidInput, "branch point is required with a parent")
		}
		return s.CreateBranch(opts.ParentID, *opts.BranchPoint, opts.Input)
	}

	now := s.now()
	c := &Conversation{
		ID:         uuid.NewString(),
		SessionID:  s.sessionID,
		AgentID:    opts.AgentID,
		Input:      opts.Input,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		ContextRef: opts.ContextRef,
		Messages:   []Message{},
		Reasoning:  []Reasoning{},
		Actions:    []ActionRecord{},
	}
	if opts.Input != "" {
		c.Messages = append(c.Messages, Message{Role: RoleUser, Content: opts.Input, Timestamp: now})
		c.Counters.Messages = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(c); err != nil {
		return nil, err
	}
	s.convs[c.ID] = c
	s.indexConversation(c)
	return c.clone(), nil
}

// CreateBranch starts a conversation whose first branchPoint messages are
// copied from the parent, followed by input as a user message.
func (s *Store) CreateBranch(parentID string, branchPoint int, input string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.convs[parentID]
	if !ok {
		return nil, engine.Errorf(engine.KindNotFound, "conversation %s not found", parentID)
	}
	if branchPoint < 0 || branchPoint > len(parent.Messages) {
		return nil, engine.Errorf(engine.KindInvalidInput, "branch point %d out of range [0, %d]", branchPoint, len(parent.Messages))
	}

	now := s.now()
	bp := branchPoint
	c := &Conversation{
		ID:          uuid.NewString(),
		SessionID:   s.sessionID,
		AgentID:     parent.AgentID,
		ParentID:    parent.ID,
		BranchPoint: &bp,
		Input:       input,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		ContextRef:  parent.ContextRef,
		Messages:    make([]Message, 0, branchPoint+1),
		Reasoning:   []Reasoning{},
		Actions:     []ActionRecord{},
	}
	for _, m := range parent.Messages[:branchPoint] {
		c.Messages = append(c.Messages, m.clone())
	}
	c.Messages = append(c.Messages, Message{Role: RoleUser, Content: input, Timestamp: now})
	c.Counters.Messages = len(c.Messages)

	if err := s.persist(c); err != nil {
		return nil, err
	}
	s.convs[c.ID] = c
	s.indexConversation(c)
	return c.clone(), nil
}

// AddMessage appends a message. Ended conversations reject new messages.
func (s *Store) AddMessage(id string, m Message) error {
	if !m.Role.valid() {
		return engine.Errorf(engine.KindInvalidInput, "invalid role %q", m.Role)
	}
	return s.mutate(id, func(c *Conversation) {
		if m.Timestamp.IsZero() {
			m.Timestamp = s.now()
		}
		m = m.clone()
		c.Messages = append(c.Messages, m)
		c.Counters.Messages = len(c.Messages)
	}, func(c *Conversation) {
		s.indexMessage(c.ID, len(c.Messages)-1, m)
	})
}

// Update carries the optional parts of Store.Update.
type Update struct {
	Reasoning  *Reasoning
	Actions    []ActionRecord
	Duration   time.Duration
	ContextRef string
}

// Update appends reasoning and action records and folds them into the
// counters.
func (s *Store) Update(id string, u Update) error {
	return s.mutate(id, func(c *Conversation) {
		now := s.now()
		if u.Reasoning != nil {
			r := *u.Reasoning
			if r.Timestamp.IsZero() {
				r.Timestamp = now
			}
			r.Decisions = append([]string(nil), r.Decisions...)
			c.Reasoning = append(c.Reasoning, r)
		}
		for _, a := range u.Actions {
			if a.Timestamp.IsZero() {
				a.Timestamp = now
			}
			if a.Outcome != nil {
				o := *a.Outcome
				a.Outcome = &o
				c.Counters.ToolCalls++
				if !o.Success {
					c.Counters.Errors++
				}
			}
			c.Actions = append(c.Actions, a)
		}
		c.Counters.TotalDuration += u.Duration
		if u.ContextRef != "" {
			c.ContextRef = u.ContextRef
		}
	}, nil)
}

// End marks a conversation finished. Ending an ended conversation is a
// no-op. The reason "shutdown" records StatusShutdown.
func (s *Store) End(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return engine.Errorf(engine.KindNotFound, "conversation %s not found", id)
	}
	if c.Status != StatusActive {
		return nil
	}
	next := c.clone()
	now := s.now()
	next.Status = StatusEnded
	if reason == ReasonShutdown {
		next.Status = StatusShutdown
	}
	next.EndReason = reason
	next.EndedAt = &now
	next.UpdatedAt = now
	if err := s.persist(next); err != nil {
		return err
	}
	s.convs[id] = next
	return nil
}

// EndActive ends every active conversation and returns their ids.
func (s *Store) EndActive(reason string) ([]string, error) {
	s.mu.RLock()
	var ids []string
	for id, c := range s.convs {
		if c.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	var errs []string
	for _, id := range ids {
		if err := s.End(id, reason); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return ids, fmt.Errorf("failed to end conversations: %s", strings.Join(errs, "; "))
	}
	return ids, nil
}

// Get returns a copy of a conversation.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, engine.Errorf(engine.KindNotFound, "conversation %s not found", id)
	}
	return c.clone(), nil
}

// List returns every conversation, most recently updated first.
func (s *Store) List() []Meta {
	s.mu.RLock()
	out := make([]Meta, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c.meta())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cleanup deletes conversations last updated before now-maxAge unless they
// are still active, then removes session directories left with no
// conversations and no recent files. It returns the number of conversations
// removed.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.convs {
		if c.Status == StatusActive || !c.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(s.files[id]); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove conversation %s: %w", id, err)
		}
		delete(s.convs, id)
		delete(s.files, id)
		s.resetIndex()
		removed++
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return removed, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == s.sessionID {
			continue
		}
		dir := filepath.Join(s.dir, e.Name())
		if staleSessionDir(dir, cutoff) {
			if err := os.RemoveAll(dir); err != nil {
				return removed, fmt.Errorf("failed to remove session %s: %w", e.Name(), err)
			}
		}
	}
	if removed > 0 {
		s.logger.Info("conversations cleaned up", zap.Int("removed", removed), zap.Duration("max_age", maxAge))
	}
	return removed, nil
}

// staleSessionDir reports whether dir has no conversation files and nothing
// modified after cutoff.
func staleSessionDir(dir string, cutoff time.Time) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") && e.Name() != "metrics.json" {
			return false
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return false
		}
	}
	return true
}

// Close releases the search index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}

// mutate applies fn to a copy of an active conversation, persists it and
// swaps it in. Callers never observe a half-applied change. committed, if
// set, runs only once the write has succeeded.
func (s *Store) mutate(id string, fn, committed func(c *Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return engine.Errorf(engine.KindNotFound, "conversation %s not found", id)
	}
	if c.Status != StatusActive {
		return engine.Errorf(engine.KindInvalidInput, "conversation %s is %s", id, c.Status)
	}
	next := c.clone()
	fn(next)
	next.UpdatedAt = s.now()
	if err := s.persist(next); err != nil {
		return err
	}
	s.convs[id] = next
	if committed != nil {
		committed(next)
	}
	return nil
}

// persist writes c atomically. Callers hold s.mu.
func (s *Store) persist(c *Conversation) error {
	path, ok := s.files[c.ID]
	if !ok {
		path = filepath.Join(s.sessionDir(), c.ID+".json")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	s.files[c.ID] = path
	return nil
}
