package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legionhq/legion/internal/config"
	"github.com/legionhq/legion/internal/models"
	"github.com/legionhq/legion/internal/services"
)

func newTestApp(t *testing.T) (*fiber.App, *services.ConversationStore) {
	t.Helper()

	store := services.NewConversationStore(config.NewRuntimeConfig(t.TempDir()))
	history := services.NewHistoryService(store)

	app := fiber.New()
	NewConversationsHandler(store, history).RegisterRoutes(app.Group("/api/conversations"))
	return app, store
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestCreateAndGetConversation(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/conversations/", strings.NewReader(`{"title": "My chat"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var created struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(t, resp, &created)
	assert.Equal(t, "My chat", created.Conversation.Title)
	assert.NotEmpty(t, created.Conversation.ID)
	assert.NotEmpty(t, created.Conversation.WorkDir)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/conversations/"+created.Conversation.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var fetched struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.Conversation, fetched.Conversation)
}

func TestGetConversationNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Conversation not found", body["error"])
}

func TestListConversationsOrder(t *testing.T) {
	app, store := newTestApp(t)

	older, err := store.Create("older", "")
	require.NoError(t, err)
	newer, err := store.Create("newer", "")
	require.NoError(t, err)

	title := "older touched"
	_, ok := store.Update(older.ID, models.UpdateConversationRequest{Title: &title})
	require.True(t, ok)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Conversations, 2)
	assert.Equal(t, older.ID, body.Conversations[0].ID)
	assert.Equal(t, newer.ID, body.Conversations[1].ID)
}

func TestUpdateConversation(t *testing.T) {
	app, store := newTestApp(t)

	conv, err := store.Create("before", "")
	require.NoError(t, err)

	req := httptest.NewRequest("PATCH", "/api/conversations/"+conv.ID, strings.NewReader(`{"title": "after", "message_count": 6}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "after", body.Conversation.Title)
	assert.Equal(t, 6, body.Conversation.MessageCount)

	req = httptest.NewRequest("PATCH", "/api/conversations/nope", strings.NewReader(`{"title": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDeleteConversation(t *testing.T) {
	app, store := newTestApp(t)

	conv, err := store.Create("t", "")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/conversations/"+conv.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]bool
	decodeBody(t, resp, &body)
	assert.True(t, body["success"])

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/conversations/"+conv.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetHistoryUnknownConversation(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations/nope/history", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetHistoryEmptyForFreshConversation(t *testing.T) {
	app, store := newTestApp(t)

	conv, err := store.Create("t", "")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations/"+conv.ID+"/history", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	decodeBody(t, resp, &body)
	assert.Empty(t, body.Messages)
}

func TestUploadFile(t *testing.T) {
	app, store := newTestApp(t)

	conv, err := store.Create("t", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "shot.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("pngdata"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/conversations/"+conv.ID+"/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body models.UploadResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "shot.png", body.Filename)
	assert.Equal(t, ".png", filepath.Ext(body.URL))
	assert.Equal(t, conv.WorkDir, filepath.Dir(body.URL))
	// Stored name is 16 hex chars plus the original extension
	assert.Len(t, filepath.Base(body.URL), 16+len(".png"))

	data, err := os.ReadFile(body.URL)
	require.NoError(t, err)
	assert.Equal(t, "pngdata", string(data))
}

func TestUploadToUnknownConversation(t *testing.T) {
	app, _ := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_, err := writer.CreateFormFile("file", "x.txt")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/conversations/nope/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestUploadWithoutFile(t *testing.T) {
	app, store := newTestApp(t)

	conv, err := store.Create("t", "")
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/conversations/"+conv.ID+"/upload", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations/config", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Config struct {
			DefaultModel string `json:"default_model"`
		} `json:"config"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "kimi-k2-0711", body.Config.DefaultModel)
}

func TestGetConfigMalformed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".kimi"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".kimi", "config.toml"), []byte("default_model = [broken"), 0644))

	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations/config", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}
