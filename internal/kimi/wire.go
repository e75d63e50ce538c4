// Package kimi is the boundary to the Kimi CLI agent runtime: the wire
// fragment types a streaming turn produces, the session capability used to
// drive turns, and the runtime's on-disk layout (config, session logs).
package kimi

// Fragment is one unit of a streamed turn's output. It is a closed union:
// consumers switch on the concrete type and the set of implementations never
// grows outside this package's clients.
type Fragment interface {
	isFragment()
}

// TextFragment is a piece of assistant response text
type TextFragment struct {
	Text string
}

// ThinkFragment is a piece of assistant reasoning text
type ThinkFragment struct {
	Think string
}

// ToolCallFragment starts a tool invocation. Arguments may be a partial JSON
// string; ToolCallChunkFragment continuations extend it.
type ToolCallFragment struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallChunkFragment extends the arguments string of the most recent
// ToolCallFragment
type ToolCallChunkFragment struct {
	ArgumentsPart string
}

// ToolResultFragment reports the outcome of a tool invocation. Message is the
// runtime's status line, Output the tool's own text.
type ToolResultFragment struct {
	ToolCallID string
	Message    string
	Output     string
	IsError    bool
}

// ApprovalRequestFragment asks for a decision before an action runs. Resolve
// must be called exactly once with the decision string.
type ApprovalRequestFragment struct {
	Action      string
	Description string
	Resolve     func(decision string)
}

// StatusFragment reports context and token usage
type StatusFragment struct {
	ContextUsage float64
	TokenUsage   map[string]any
}

func (TextFragment) isFragment()            {}
func (ThinkFragment) isFragment()           {}
func (ToolCallFragment) isFragment()        {}
func (ToolCallChunkFragment) isFragment()   {}
func (ToolResultFragment) isFragment()      {}
func (ApprovalRequestFragment) isFragment() {}
func (StatusFragment) isFragment()          {}

// ContentPart is one part of a user prompt
type ContentPart interface {
	isContentPart()
}

// TextPart is plain prompt text
type TextPart struct {
	Text string `json:"text"`
}

// ImageURLPart attaches an image by URL or data URI
type ImageURLPart struct {
	URL string `json:"url"`
}

func (TextPart) isContentPart()     {}
func (ImageURLPart) isContentPart() {}
