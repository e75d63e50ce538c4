package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/legionhq/legion/internal/config"
	"github.com/legionhq/legion/internal/logger"
	"github.com/legionhq/legion/internal/models"
)

// DefaultConversationTitle is used when a create request carries no title
const DefaultConversationTitle = "New Conversation"

const sessionIDPrefix = "legion-conv-"

// ConversationStore owns conversation metadata: an in-memory map backed by a
// single JSON file that is fully rewritten on every mutation. One mutex
// serializes all mutations so concurrent updates never interleave on the
// rewrite.
type ConversationStore struct {
	mu            sync.Mutex
	runtime       *config.RuntimeConfig
	conversations map[string]*models.Conversation

	// evict is called with the conversation id when a record is deleted, so
	// the session cache can close any live handle. Set once during wiring.
	evict func(convID string)
}

// NewConversationStore creates a store rooted at the given runtime layout and
// loads whatever the store file already holds.
func NewConversationStore(rc *config.RuntimeConfig) *ConversationStore {
	s := &ConversationStore{
		runtime:       rc,
		conversations: make(map[string]*models.Conversation),
	}
	if err := os.MkdirAll(rc.DataDir, 0755); err != nil {
		logger.Warnf("Failed to create data directory %s: %v", rc.DataDir, err)
	}
	s.load()
	return s
}

// SetEvictFunc registers the session-eviction hook invoked on Delete
func (s *ConversationStore) SetEvictFunc(evict func(convID string)) {
	s.evict = evict
}

// load reads the store file. Malformed records are skipped individually; one
// corrupt entry must not take down the rest of the store.
func (s *ConversationStore) load() {
	data, err := os.ReadFile(s.runtime.ConversationsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to read conversations file: %v", err)
		}
		return
	}

	var file struct {
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		logger.Warnf("Failed to parse conversations file: %v", err)
		return
	}

	for _, raw := range file.Conversations {
		var conv models.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			logger.Warnf("Skipping malformed conversation record: %v", err)
			continue
		}
		if conv.ID == "" || conv.SessionID == "" || conv.WorkDir == "" {
			logger.Warnf("Skipping conversation record with missing fields")
			continue
		}
		s.conversations[conv.ID] = &conv
	}
}

// save rewrites the whole store file. Caller must hold the mutex.
func (s *ConversationStore) save() {
	list := s.sortedLocked()
	data, err := json.MarshalIndent(map[string]any{"conversations": list}, "", "  ")
	if err != nil {
		logger.Errorf("Failed to marshal conversations: %v", err)
		return
	}
	if err := os.WriteFile(s.runtime.ConversationsFile, data, 0644); err != nil {
		logger.Errorf("Failed to write conversations file: %v", err)
	}
}

// sortedLocked returns all conversations ordered by updated time descending,
// ties broken by id so the order is deterministic. Timestamps are compared as
// parsed instants, not strings: RFC3339Nano drops trailing fractional zeros,
// so string order and time order disagree when one fraction is a prefix of
// another. Caller must hold the mutex.
func (s *ConversationStore) sortedLocked() []models.Conversation {
	list := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		list = append(list, *conv)
	}
	sort.Slice(list, func(i, j int) bool {
		ti := parseTimestamp(list[i].UpdatedAt)
		tj := parseTimestamp(list[j].UpdatedAt)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// parseTimestamp reads a stored timestamp. An unparseable value sorts as the
// zero instant, pushing the record to the end of the list.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// newConversationID allocates a short hex id from a fresh UUID
func newConversationID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Create allocates a new conversation. The session identity is derived from
// the id; the working directory defaults under the data dir and is created on
// disk either way.
func (s *ConversationStore) Create(title, workDir string) (models.Conversation, error) {
	if title == "" {
		title = DefaultConversationTitle
	}

	id := newConversationID()
	if workDir == "" {
		workDir = filepath.Join(s.runtime.WorkDirsDir, id)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return models.Conversation{}, err
	}

	ts := now()
	conv := &models.Conversation{
		ID:        id,
		Title:     title,
		SessionID: sessionIDPrefix + id,
		WorkDir:   workDir,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	s.save()
	return *conv, nil
}

// Get returns the conversation with the given id, reporting whether it exists
func (s *ConversationStore) Get(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *conv, true
}

// List returns all conversations, most recently updated first
func (s *ConversationStore) List() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Update applies the provided fields to a conversation and refreshes its
// updated time. Returns absence, not an error, for an unknown id.
func (s *ConversationStore) Update(id string, req models.UpdateConversationRequest) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}

	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.MessageCount != nil {
		conv.MessageCount = *req.MessageCount
	}
	conv.UpdatedAt = now()

	s.save()
	return *conv, true
}

// Delete removes a conversation, evicting any live session, and reports
// whether a record existed.
func (s *ConversationStore) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.conversations, id)
	s.save()
	evict := s.evict
	s.mu.Unlock()

	if evict != nil {
		evict(id)
	}
	return true
}
