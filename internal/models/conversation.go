package models

// Conversation represents a persisted chat thread with its own working
// directory and upstream session identity. Timestamps are ISO-8601 strings so
// they round-trip the store file unchanged; ordering parses them back into
// instants.
type Conversation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SessionID    string `json:"session_id"`
	WorkDir      string `json:"work_dir"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

// CreateConversationRequest is the POST /api/conversations body
type CreateConversationRequest struct {
	Title   string `json:"title"`
	WorkDir string `json:"work_dir,omitempty"`
}

// UpdateConversationRequest is the PATCH /api/conversations/:id body.
// Nil fields are left untouched.
type UpdateConversationRequest struct {
	Title        *string `json:"title,omitempty"`
	MessageCount *int    `json:"message_count,omitempty"`
}

// UploadResponse is returned after a file lands in the conversation work dir
type UploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// UIMessage is a reconstructed, display-ready transcript entry derived from
// the session's context log. Implementations are the three concrete message
// shapes below.
type UIMessage interface {
	uiMessage()
}

// UIUserMessage is a plain user message
type UIUserMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ToolCallInfo describes one resolved tool call on an assistant message.
// Arguments holds a parsed JSON object when the log stored a string.
type ToolCallInfo struct {
	ToolName   string `json:"tool_name"`
	Arguments  any    `json:"arguments"`
	ToolCallID string `json:"tool_call_id"`
}

// UIAssistantMessage carries the assistant text, its thinking block and the
// ordered tool calls it made
type UIAssistantMessage struct {
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Thinking  string         `json:"thinking"`
	ToolCalls []ToolCallInfo `json:"tool_calls"`
}

// UIToolResultMessage correlates a tool output back to its call
type UIToolResultMessage struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

func (UIUserMessage) uiMessage()       {}
func (UIAssistantMessage) uiMessage()  {}
func (UIToolResultMessage) uiMessage() {}

// NewUIUserMessage builds a user transcript entry
func NewUIUserMessage(content string) UIUserMessage {
	return UIUserMessage{Type: "user", Content: content}
}

// NewUIAssistantMessage builds an assistant transcript entry
func NewUIAssistantMessage(content, thinking string, toolCalls []ToolCallInfo) UIAssistantMessage {
	return UIAssistantMessage{Type: "assistant", Content: content, Thinking: thinking, ToolCalls: toolCalls}
}

// NewUIToolResultMessage builds a tool result transcript entry
func NewUIToolResultMessage(toolCallID, output string) UIToolResultMessage {
	return UIToolResultMessage{Type: "tool_result", ToolCallID: toolCallID, Output: output}
}
