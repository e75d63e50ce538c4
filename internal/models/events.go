package models

// Client → server message on the chat WebSocket. A "stop" control message
// carries only Type; a turn submission carries the rest.
type ChatClientMessage struct {
	Type        string       `json:"type,omitempty"`
	Message     string       `json:"message,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Thinking    bool         `json:"thinking,omitempty"`
	Model       string       `json:"model,omitempty"`
}

// Attachment is an inline attachment on a turn submission. Only image_url
// attachments are understood today.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Server → client events. Each event carries its discriminating type tag so
// the frontend can switch on it.

// UserEvent echoes the submitted text back as turn confirmation
type UserEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChunkEvent carries an assistant text fragment
type ChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ThinkEvent carries a reasoning fragment
type ThinkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ToolCallEvent announces a streaming tool invocation. ArgumentsRaw is the
// possibly partial arguments string seen so far; the frontend shows it
// verbatim until the matching ToolCallCompleteEvent replaces it.
type ToolCallEvent struct {
	Type         string `json:"type"`
	ToolCallID   string `json:"tool_call_id"`
	ToolName     string `json:"tool_name"`
	ArgumentsRaw string `json:"arguments_raw"`
}

// ToolCallChunkEvent carries one increment of a streaming arguments string
type ToolCallChunkEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// ToolCallCompleteEvent finalizes a tool invocation with parsed arguments
type ToolCallCompleteEvent struct {
	Type       string         `json:"type"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

// ToolResultEvent carries the rendered output of a completed tool call
type ToolResultEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// ApprovalEvent reports an auto-approved action request
type ApprovalEvent struct {
	Type        string `json:"type"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// StatusEvent reports context and token usage for the turn so far
type StatusEvent struct {
	Type         string  `json:"type"`
	ContextUsage float64 `json:"context_usage"`
	TokenUsage   any     `json:"token_usage"`
}

// ErrorEvent reports a turn-level failure without closing the connection
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CompleteEvent marks the end of a turn, for both the normal and the
// cancellation path
type CompleteEvent struct {
	Type string `json:"type"`
}
