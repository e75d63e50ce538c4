package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/legionhq/legion/internal/kimi"
	"github.com/legionhq/legion/internal/logger"
	"github.com/legionhq/legion/internal/models"
	"github.com/legionhq/legion/internal/services"
	"github.com/legionhq/legion/internal/stream"
)

// ChatHandler drives streaming chat turns over a WebSocket connection
type ChatHandler struct {
	store    *services.ConversationStore
	sessions *services.SessionCache
}

// NewChatHandler creates a new chat handler
func NewChatHandler(store *services.ConversationStore, sessions *services.SessionCache) *ChatHandler {
	return &ChatHandler{
		store:    store,
		sessions: sessions,
	}
}

// RegisterRoutes registers the chat WebSocket route on the given router
func (h *ChatHandler) RegisterRoutes(api fiber.Router) {
	api.Get("/ws/:id", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and hands it to the chat loop
// @Summary Chat WebSocket endpoint
// @Router /api/conversations/ws/{id} [get]
func (h *ChatHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	convID := c.Params("id")
	return websocket.New(func(conn *websocket.Conn) {
		h.handleConnection(conn, convID)
	})(c)
}

// wsSender serializes event writes onto one WebSocket connection. The read
// loop and the turn goroutine both write, so every write goes through here.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// chatConn is the per-connection state: the shared sender and the session of
// the in-flight turn, held only while that turn is streaming so stop can
// reach it.
type chatConn struct {
	handler *ChatHandler
	convID  string
	sender  stream.Sender

	mu      sync.Mutex
	current kimi.Session
}

// handleConnection runs the connection's read loop. Turns execute strictly
// one at a time; a stop control message is read out-of-band while a turn
// streams and cancels only the in-flight upstream call. Disconnecting leaves
// the conversation's session cached for the next connection.
func (h *ChatHandler) handleConnection(conn *websocket.Conn, convID string) {
	sender := &wsSender{conn: conn}

	if _, ok := h.store.Get(convID); !ok {
		_ = sender.Send(models.ErrorEvent{Type: "error", Message: errConversationNotFound})
		return
	}

	cc := &chatConn{handler: h, convID: convID, sender: sender}
	logger.Debugf("Chat connection opened for conversation %s", convID)

	var turnDone chan struct{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Debugf("Chat connection closed for conversation %s: %v", convID, err)
			if turnDone != nil {
				<-turnDone
			}
			return
		}

		var msg models.ChatClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sender.Send(models.ErrorEvent{Type: "error", Message: "Invalid message"})
			continue
		}

		if msg.Type == "stop" {
			cc.cancelCurrent()
			continue
		}

		if msg.Message == "" && len(msg.Attachments) == 0 {
			continue
		}

		// A turn does not start until the previous one has emitted complete
		if turnDone != nil {
			<-turnDone
		}
		done := make(chan struct{})
		turnDone = done
		go func(msg models.ChatClientMessage) {
			defer close(done)
			cc.runTurn(msg)
		}(msg)
	}
}

// cancelCurrent aborts the in-flight turn, if any. The session itself stays
// cached; only its current run is interrupted.
func (c *chatConn) cancelCurrent() {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil {
		logger.Debugf("Stop received with no turn in flight for %s", c.convID)
		return
	}
	session.Cancel()
}

// runTurn executes one full turn: echo the user message, stream the upstream
// fragments through the translator, and close out with a complete event on
// every path, including cancellation.
func (c *chatConn) runTurn(msg models.ChatClientMessage) {
	session := c.handler.sessions.GetOrCreate(c.convID, kimi.SessionOptions{
		Thinking: msg.Thinking,
		Model:    msg.Model,
	})
	if session == nil {
		_ = c.sender.Send(models.ErrorEvent{Type: "error", Message: "Failed to start agent session"})
		return
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}()

	if err := c.sender.Send(models.UserEvent{Type: "user", Content: msg.Message}); err != nil {
		return
	}

	translator := stream.NewTranslator(c.sender)

	frags, err := session.Prompt(context.Background(), buildContentParts(msg))
	if err != nil {
		if !errors.Is(err, kimi.ErrCancelled) {
			logger.Errorf("Failed to start turn for %s: %v", c.convID, err)
			_ = c.sender.Send(models.ErrorEvent{Type: "error", Message: err.Error()})
		}
		_ = c.sender.Send(models.CompleteEvent{Type: "complete"})
		return
	}

	for {
		frag, err := frags.Next()
		if err != nil {
			// EOF is the normal end of turn; ErrCancelled is a clean stop and
			// completes the turn without an error event
			if !errors.Is(err, io.EOF) && !errors.Is(err, kimi.ErrCancelled) {
				logger.Errorf("Turn failed for %s: %v", c.convID, err)
				_ = c.sender.Send(models.ErrorEvent{Type: "error", Message: err.Error()})
			}
			break
		}
		if err := translator.Handle(frag); err != nil {
			// The socket went away mid-turn; abort the upstream run
			logger.Warnf("Dropping turn for %s, client write failed: %v", c.convID, err)
			session.Cancel()
			return
		}
	}

	_ = translator.Flush()
	_ = c.sender.Send(models.CompleteEvent{Type: "complete"})

	if conv, ok := c.handler.store.Get(c.convID); ok {
		count := conv.MessageCount + 2
		c.handler.store.Update(c.convID, models.UpdateConversationRequest{MessageCount: &count})
	}
}

// buildContentParts assembles the prompt parts for a turn submission. Only
// image_url attachments are forwarded.
func buildContentParts(msg models.ChatClientMessage) []kimi.ContentPart {
	parts := []kimi.ContentPart{}
	if msg.Message != "" {
		parts = append(parts, kimi.TextPart{Text: msg.Message})
	}
	for _, att := range msg.Attachments {
		if att.Type == "image_url" && att.URL != "" {
			parts = append(parts, kimi.ImageURLPart{URL: att.URL})
		}
	}
	return parts
}
