package handlers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/legionhq/legion/internal/kimi"
	"github.com/legionhq/legion/internal/logger"
	"github.com/legionhq/legion/internal/models"
	"github.com/legionhq/legion/internal/services"
)

const errConversationNotFound = "Conversation not found"

// ConversationsHandler handles the conversation resource endpoints
type ConversationsHandler struct {
	store   *services.ConversationStore
	history *services.HistoryService
}

// NewConversationsHandler creates a new conversations handler
func NewConversationsHandler(store *services.ConversationStore, history *services.HistoryService) *ConversationsHandler {
	return &ConversationsHandler{
		store:   store,
		history: history,
	}
}

// RegisterRoutes registers all conversation routes on the given router
func (h *ConversationsHandler) RegisterRoutes(api fiber.Router) {
	api.Get("/config", h.GetConfig)
	api.Get("/", h.ListConversations)
	api.Post("/", h.CreateConversation)
	api.Get("/:id", h.GetConversation)
	api.Delete("/:id", h.DeleteConversation)
	api.Patch("/:id", h.UpdateConversation)
	api.Get("/:id/history", h.GetHistory)
	api.Post("/:id/upload", h.UploadFile)
}

// GetConfig returns the upstream runtime's model/provider configuration
// @Summary Get runtime configuration
// @Produce json
// @Router /api/conversations/config [get]
func (h *ConversationsHandler) GetConfig(c *fiber.Ctx) error {
	cfg, err := kimi.LoadConfig()
	if err != nil {
		logger.Errorf("Failed to load runtime config: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"config": cfg})
}

// ListConversations returns all conversations, most recently updated first
// @Summary List conversations
// @Produce json
// @Router /api/conversations [get]
func (h *ConversationsHandler) ListConversations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"conversations": h.store.List()})
}

// CreateConversation creates a new conversation
// @Summary Create a conversation
// @Accept json
// @Produce json
// @Router /api/conversations [post]
func (h *ConversationsHandler) CreateConversation(c *fiber.Ctx) error {
	var req models.CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	conv, err := h.store.Create(req.Title, req.WorkDir)
	if err != nil {
		logger.Errorf("Failed to create conversation: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"conversation": conv})
}

// GetConversation returns a single conversation
// @Summary Get a conversation
// @Produce json
// @Router /api/conversations/{id} [get]
func (h *ConversationsHandler) GetConversation(c *fiber.Ctx) error {
	conv, ok := h.store.Get(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": errConversationNotFound,
		})
	}
	return c.JSON(fiber.Map{"conversation": conv})
}

// DeleteConversation removes a conversation and evicts its live session
// @Summary Delete a conversation
// @Produce json
// @Router /api/conversations/{id} [delete]
func (h *ConversationsHandler) DeleteConversation(c *fiber.Ctx) error {
	if !h.store.Delete(c.Params("id")) {
		return c.Status(404).JSON(fiber.Map{
			"error": errConversationNotFound,
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// UpdateConversation applies a partial update to a conversation
// @Summary Update a conversation
// @Accept json
// @Produce json
// @Router /api/conversations/{id} [patch]
func (h *ConversationsHandler) UpdateConversation(c *fiber.Ctx) error {
	var req models.UpdateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	conv, ok := h.store.Update(c.Params("id"), req)
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": errConversationNotFound,
		})
	}
	return c.JSON(fiber.Map{"conversation": conv})
}

// GetHistory returns the reconstructed transcript for a conversation
// @Summary Get conversation history
// @Produce json
// @Router /api/conversations/{id}/history [get]
func (h *ConversationsHandler) GetHistory(c *fiber.Ctx) error {
	convID := c.Params("id")
	if _, ok := h.store.Get(convID); !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": errConversationNotFound,
		})
	}
	return c.JSON(fiber.Map{"messages": h.history.Load(convID)})
}

// UploadFile stores an uploaded file in the conversation's working directory
// under a random name that keeps the original extension
// @Summary Upload a file to a conversation
// @Accept multipart/form-data
// @Produce json
// @Router /api/conversations/{id}/upload [post]
func (h *ConversationsHandler) UploadFile(c *fiber.Ctx) error {
	conv, ok := h.store.Get(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": errConversationNotFound,
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file provided or invalid file",
		})
	}

	originalName := file.Filename
	if originalName == "" {
		originalName = "unnamed"
	}
	ext := filepath.Ext(originalName)
	uniqueName := strings.ReplaceAll(uuid.New().String(), "-", "")[:16] + ext

	if err := os.MkdirAll(conv.WorkDir, 0755); err != nil {
		logger.Errorf("Failed to create work dir for upload: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to save file: %v", err),
		})
	}

	destPath := filepath.Join(conv.WorkDir, uniqueName)
	src, err := file.Open()
	if err != nil {
		logger.Errorf("Failed to open uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to save file: %v", err),
		})
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		logger.Errorf("Failed to create destination file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to save file: %v", err),
		})
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		logger.Errorf("Failed to write uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to save file: %v", err),
		})
	}

	return c.JSON(models.UploadResponse{
		URL:      destPath,
		Filename: originalName,
	})
}
