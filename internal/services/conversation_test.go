package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legionhq/legion/internal/config"
	"github.com/legionhq/legion/internal/models"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	return NewConversationStore(config.NewRuntimeConfig(t.TempDir()))
}

func TestConversationCreateGetDelete(t *testing.T) {
	store := newTestStore(t)

	conv, err := store.Create("My chat", "")
	require.NoError(t, err)
	assert.Len(t, conv.ID, 8)
	assert.Equal(t, "My chat", conv.Title)
	assert.Equal(t, "legion-conv-"+conv.ID, conv.SessionID)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
	assert.Equal(t, 0, conv.MessageCount)

	// The default work dir is allocated under the data dir and exists on disk
	info, err := os.Stat(conv.WorkDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	got, ok := store.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, conv, got)

	assert.True(t, store.Delete(conv.ID))
	_, ok = store.Get(conv.ID)
	assert.False(t, ok)
	assert.False(t, store.Delete(conv.ID))
}

func TestConversationDefaultTitle(t *testing.T) {
	store := newTestStore(t)

	conv, err := store.Create("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConversationTitle, conv.Title)
}

func TestConversationExplicitWorkDir(t *testing.T) {
	store := newTestStore(t)
	workDir := filepath.Join(t.TempDir(), "project")

	conv, err := store.Create("t", workDir)
	require.NoError(t, err)
	assert.Equal(t, workDir, conv.WorkDir)

	info, err := os.Stat(workDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConversationListOrderedByUpdate(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Create("first", "")
	require.NoError(t, err)
	second, err := store.Create("second", "")
	require.NoError(t, err)

	title := "first again"
	_, ok := store.Update(first.ID, models.UpdateConversationRequest{Title: &title})
	require.True(t, ok)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestConversationListOrderWithPrefixFractionTimestamps(t *testing.T) {
	rc := config.NewRuntimeConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(rc.DataDir, 0755))

	// RFC3339Nano drops trailing zeros, so ".5Z" (earlier) compares greater
	// than ".51Z" (later) as a string. Ordering must follow the instants.
	raw := `{"conversations": [
		{"id": "aaaa0000", "title": "earlier", "session_id": "legion-conv-aaaa0000", "work_dir": "/tmp/w1", "created_at": "2026-01-02T03:04:00.5Z", "updated_at": "2026-01-02T03:04:00.5Z"},
		{"id": "bbbb0000", "title": "later", "session_id": "legion-conv-bbbb0000", "work_dir": "/tmp/w2", "created_at": "2026-01-02T03:04:00.51Z", "updated_at": "2026-01-02T03:04:00.51Z"}
	]}`
	require.NoError(t, os.WriteFile(rc.ConversationsFile, []byte(raw), 0644))

	store := NewConversationStore(rc)
	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "bbbb0000", list[0].ID)
	assert.Equal(t, "aaaa0000", list[1].ID)
}

func TestConversationUpdatePartial(t *testing.T) {
	store := newTestStore(t)

	conv, err := store.Create("original", "")
	require.NoError(t, err)

	count := 4
	updated, ok := store.Update(conv.ID, models.UpdateConversationRequest{MessageCount: &count})
	require.True(t, ok)
	assert.Equal(t, "original", updated.Title)
	assert.Equal(t, 4, updated.MessageCount)
	assert.GreaterOrEqual(t, updated.UpdatedAt, conv.UpdatedAt)

	_, ok = store.Update("missing", models.UpdateConversationRequest{})
	assert.False(t, ok)
}

func TestConversationPersistenceAcrossReload(t *testing.T) {
	rc := config.NewRuntimeConfig(t.TempDir())

	store := NewConversationStore(rc)
	conv, err := store.Create("persisted", "")
	require.NoError(t, err)

	reloaded := NewConversationStore(rc)
	got, ok := reloaded.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, conv, got)
}

func TestConversationLoadSkipsMalformedRecords(t *testing.T) {
	rc := config.NewRuntimeConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(rc.DataDir, 0755))

	raw := `{"conversations": [
		{"id": "good1234", "title": "ok", "session_id": "legion-conv-good1234", "work_dir": "/tmp/w", "created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z", "message_count": 2},
		{"id": "nodirs00", "title": "missing fields"},
		"not even an object"
	]}`
	require.NoError(t, os.WriteFile(rc.ConversationsFile, []byte(raw), 0644))

	store := NewConversationStore(rc)
	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, "good1234", list[0].ID)
	assert.Equal(t, 2, list[0].MessageCount)
}

func TestConversationDeleteInvokesEvict(t *testing.T) {
	store := newTestStore(t)

	var evicted []string
	store.SetEvictFunc(func(id string) { evicted = append(evicted, id) })

	conv, err := store.Create("t", "")
	require.NoError(t, err)

	require.True(t, store.Delete(conv.ID))
	assert.Equal(t, []string{conv.ID}, evicted)

	// Deleting a missing conversation must not evict anything
	store.Delete(conv.ID)
	assert.Len(t, evicted, 1)
}
