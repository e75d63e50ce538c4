package services

import (
	"os"
	"sync"

	"github.com/legionhq/legion/internal/kimi"
	"github.com/legionhq/legion/internal/logger"
)

// SessionCache keeps at most one live upstream session per conversation. A
// cached handle is reused only when its model selector matches the request;
// otherwise it is closed and replaced before anyone else can observe it.
type SessionCache struct {
	mu       sync.Mutex
	store    *ConversationStore
	launcher kimi.Launcher
	sessions map[string]kimi.Session
}

// NewSessionCache creates a cache backed by the given store and launcher
func NewSessionCache(store *ConversationStore, launcher kimi.Launcher) *SessionCache {
	return &SessionCache{
		store:    store,
		launcher: launcher,
		sessions: make(map[string]kimi.Session),
	}
}

// GetOrCreate returns the live session for a conversation, resuming or
// creating one as needed. Returns nil when the conversation is unknown or the
// upstream refuses both resume and create; failures are logged, never
// propagated as a crash.
func (c *SessionCache) GetOrCreate(convID string, opts kimi.SessionOptions) kimi.Session {
	conv, ok := c.store.Get(convID)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.sessions[convID]; ok {
		if cached.Model() == opts.Model {
			return cached
		}
		// Model changed: the stale handle must be gone before a replacement
		// is handed out
		if err := cached.Close(); err != nil {
			logger.Warnf("Failed to close stale session for %s: %v", convID, err)
		}
		delete(c.sessions, convID)
	}

	if err := os.MkdirAll(conv.WorkDir, 0755); err != nil {
		logger.Errorf("Failed to create work dir %s: %v", conv.WorkDir, err)
		return nil
	}

	session, err := c.launcher.Resume(conv.WorkDir, conv.SessionID, opts)
	if err != nil {
		logger.Errorf("Failed to resume session for %s: %v", convID, err)
		return nil
	}
	if session == nil {
		session, err = c.launcher.Create(conv.WorkDir, conv.SessionID, opts)
		if err != nil {
			logger.Errorf("Failed to create session for %s: %v", convID, err)
			return nil
		}
	}

	c.sessions[convID] = session
	return session
}

// Close closes and drops the cached session for a conversation. Idempotent on
// absence.
func (c *SessionCache) Close(convID string) {
	c.mu.Lock()
	session, ok := c.sessions[convID]
	delete(c.sessions, convID)
	c.mu.Unlock()

	if ok {
		if err := session.Close(); err != nil {
			logger.Warnf("Failed to close session for %s: %v", convID, err)
		}
	}
}

// CloseAll closes every cached session and clears the cache unconditionally,
// even when individual closes fail. Used at shutdown.
func (c *SessionCache) CloseAll() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]kimi.Session)
	c.mu.Unlock()

	for convID, session := range sessions {
		if err := session.Close(); err != nil {
			logger.Warnf("Failed to close session for %s: %v", convID, err)
		}
	}
}
