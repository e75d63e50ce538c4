package services

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/legionhq/legion/internal/kimi"
	"github.com/legionhq/legion/internal/logger"
	"github.com/legionhq/legion/internal/models"
)

const maxContextLineSize = 8 * 1024 * 1024

// Internal roles in context.jsonl that carry runtime bookkeeping, not
// conversation content
var contextSkipRoles = map[string]bool{
	"_checkpoint": true,
	"_usage":      true,
}

// HistoryService reconstructs a UI-renderable transcript from the runtime's
// append-only context log. It is a derived, read-only view: nothing it
// produces is persisted.
type HistoryService struct {
	store *ConversationStore

	// resolvePath maps (workDir, sessionID) to the context log file; defaults
	// to the runtime's own layout via internal/kimi
	resolvePath func(workDir, sessionID string) string
}

// NewHistoryService creates a history loader for the given store
func NewHistoryService(store *ConversationStore) *HistoryService {
	return &HistoryService{
		store:       store,
		resolvePath: kimi.ContextFilePath,
	}
}

// Load returns the transcript for a conversation. Unknown conversations,
// missing log files and individually malformed lines all degrade to fewer
// messages, never to an error: the log is scanned line by line so arbitrarily
// long transcripts never need to fit in memory at once.
func (h *HistoryService) Load(convID string) []models.UIMessage {
	messages := []models.UIMessage{}

	conv, ok := h.store.Get(convID)
	if !ok {
		return messages
	}

	contextFile := h.resolvePath(conv.WorkDir, conv.SessionID)
	if contextFile == "" {
		return messages
	}

	file, err := os.Open(contextFile)
	if err != nil {
		logger.Warnf("Failed to open context file %s: %v", contextFile, err)
		return messages
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxContextLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record contextRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			logger.Debugf("Skipping malformed context line: %v", err)
			continue
		}
		if contextSkipRoles[record.Role] {
			continue
		}

		if msg := record.toUIMessage(); msg != nil {
			messages = append(messages, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warnf("Failed while reading context file %s: %v", contextFile, err)
	}

	return messages
}

// contextRecord is one line of the runtime's context.jsonl
type contextRecord struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content"`
	ToolCalls  []recordToolCall `json:"tool_calls"`
	ToolCallID string           `json:"tool_call_id"`
}

type recordToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// contentPart is one element of a structured content list. The legacy
// "thinking" shape is folded into the current "think" one at decode time.
type contentPart struct {
	Type          string          `json:"type"`
	Text          string          `json:"text"`
	Think         string          `json:"think"`
	Thinking      string          `json:"thinking"`
	ID            string          `json:"id"`
	ArgumentsPart string          `json:"arguments_part"`
	Function      *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`

	raw json.RawMessage
}

func (p *contentPart) normalize() {
	if p.Type == "thinking" {
		p.Type = "think"
		p.Think = p.Thinking
	}
}

// decodeContent interprets a content field that may be a bare string or a
// list of typed parts. A bare string comes back as a single text part.
func decodeContent(raw json.RawMessage) []contentPart {
	if len(raw) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []contentPart{{Type: "text", Text: text}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	parts := make([]contentPart, 0, len(items))
	for _, item := range items {
		var part contentPart
		if err := json.Unmarshal(item, &part); err != nil {
			continue
		}
		part.raw = item
		part.normalize()
		parts = append(parts, part)
	}
	return parts
}

func (r *contextRecord) toUIMessage() models.UIMessage {
	switch r.Role {
	case "user":
		return models.NewUIUserMessage(joinText(decodeContent(r.Content)))
	case "assistant":
		return r.toAssistantMessage()
	case "tool":
		return r.toToolResultMessage()
	default:
		// system and anything else contributes no message
		return nil
	}
}

func joinText(parts []contentPart) string {
	var texts []string
	for _, part := range parts {
		if part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, " ")
}

func (r *contextRecord) toAssistantMessage() models.UIMessage {
	parts := decodeContent(r.Content)

	var texts, thinking []string
	toolCalls := []models.ToolCallInfo{}

	for _, part := range parts {
		switch part.Type {
		case "text":
			texts = append(texts, part.Text)
		case "think":
			thinking = append(thinking, part.Think)
		case "tool_call":
			info := models.ToolCallInfo{ToolName: "unknown", Arguments: map[string]any{}, ToolCallID: part.ID}
			if part.Function != nil {
				if part.Function.Name != "" {
					info.ToolName = part.Function.Name
				}
				info.Arguments = parseArguments(part.Function.Arguments)
			}
			toolCalls = append(toolCalls, info)
		case "tool_call_part":
			// Streaming arguments that never got folded into a tool_call
			if part.ArgumentsPart != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(part.ArgumentsPart), &args); err == nil {
					toolCalls = append(toolCalls, models.ToolCallInfo{ToolName: "unknown", Arguments: args})
				}
			}
		}
	}

	for _, tc := range r.ToolCalls {
		toolCalls = append(toolCalls, models.ToolCallInfo{
			ToolName:   tc.Function.Name,
			Arguments:  parseArguments(tc.Function.Arguments),
			ToolCallID: tc.ID,
		})
	}

	return models.NewUIAssistantMessage(strings.Join(texts, " "), strings.Join(thinking, " "), toolCalls)
}

// parseArguments resolves a tool call's arguments field, which may be a JSON
// object or a JSON-encoded string holding one
func parseArguments(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if strings.TrimSpace(str) == "" {
			return map[string]any{}
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(str), &args); err != nil {
			return map[string]any{}
		}
		return args
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}

func (r *contextRecord) toToolResultMessage() models.UIMessage {
	parts := decodeContent(r.Content)

	var out []string
	for _, part := range parts {
		if part.Type == "text" {
			out = append(out, part.Text)
		} else if part.raw != nil {
			// Non-text parts are stringified so nothing the model saw is
			// silently dropped
			out = append(out, string(part.raw))
		} else {
			out = append(out, part.Text)
		}
	}

	return models.NewUIToolResultMessage(r.ToolCallID, strings.Join(out, "\n"))
}
