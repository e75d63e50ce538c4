// Package stream converts the upstream session's wire fragments into the
// client-facing event stream, aggregating streamed tool-call arguments along
// the way.
package stream

import (
	"encoding/json"
	"strings"

	"github.com/legionhq/legion/internal/kimi"
	"github.com/legionhq/legion/internal/logger"
	"github.com/legionhq/legion/internal/models"
)

// Sender delivers one client event. The chat handler backs it with the
// WebSocket connection; tests back it with a slice.
type Sender interface {
	Send(v any) error
}

// pendingToolCall is the single-slot buffer holding the most recent tool
// invocation until a non-continuation fragment, or the end of the turn,
// flushes it.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// Translator is the per-turn state machine over one pending tool-call slot.
// Fragments must be handled in arrival order; emitted events preserve that
// order, with a flush-triggered tool_call_complete inserted immediately
// before the event of the fragment that triggered it.
type Translator struct {
	sender   Sender
	pending  *pendingToolCall
	response strings.Builder
}

// NewTranslator creates a translator for one turn
func NewTranslator(sender Sender) *Translator {
	return &Translator{sender: sender}
}

// Response returns the assistant text accumulated so far this turn
func (t *Translator) Response() string {
	return t.response.String()
}

// Handle processes one wire fragment, emitting the corresponding events
func (t *Translator) Handle(frag kimi.Fragment) error {
	switch f := frag.(type) {
	case kimi.TextFragment:
		if err := t.Flush(); err != nil {
			return err
		}
		if f.Text == "" {
			return nil
		}
		t.response.WriteString(f.Text)
		return t.sender.Send(models.ChunkEvent{Type: "chunk", Content: f.Text})

	case kimi.ThinkFragment:
		if err := t.Flush(); err != nil {
			return err
		}
		if f.Think == "" {
			return nil
		}
		return t.sender.Send(models.ThinkEvent{Type: "think", Content: f.Think})

	case kimi.ToolCallFragment:
		if err := t.Flush(); err != nil {
			return err
		}
		pending := &pendingToolCall{id: f.ID, name: f.Name}
		pending.args.WriteString(f.Arguments)
		t.pending = pending
		return t.sender.Send(models.ToolCallEvent{
			Type:         "tool_call",
			ToolCallID:   f.ID,
			ToolName:     f.Name,
			ArgumentsRaw: f.Arguments,
		})

	case kimi.ToolCallChunkFragment:
		// No slot to extend means the runtime emitted a stray continuation;
		// ignore it
		if t.pending == nil {
			return nil
		}
		t.pending.args.WriteString(f.ArgumentsPart)
		if f.ArgumentsPart == "" {
			return nil
		}
		return t.sender.Send(models.ToolCallChunkEvent{
			Type:       "tool_call_chunk",
			ToolCallID: t.pending.id,
			Content:    f.ArgumentsPart,
		})

	case kimi.ToolResultFragment:
		if err := t.Flush(); err != nil {
			return err
		}
		return t.sender.Send(models.ToolResultEvent{
			Type:       "tool_result",
			ToolCallID: f.ToolCallID,
			Output:     kimi.RenderToolResult(f),
		})

	case kimi.ApprovalRequestFragment:
		if err := t.Flush(); err != nil {
			return err
		}
		// No human-in-the-loop gating in this deployment mode
		if f.Resolve != nil {
			f.Resolve("approve")
		}
		return t.sender.Send(models.ApprovalEvent{
			Type:        "approval",
			Action:      f.Action,
			Description: f.Description,
		})

	case kimi.StatusFragment:
		if err := t.Flush(); err != nil {
			return err
		}
		return t.sender.Send(models.StatusEvent{
			Type:         "status",
			ContextUsage: f.ContextUsage,
			TokenUsage:   f.TokenUsage,
		})

	default:
		return nil
	}
}

// Flush finalizes the pending tool invocation, if any: the accumulated
// arguments string is parsed and emitted as tool_call_complete, then the slot
// is cleared. Runs on every non-continuation fragment and unconditionally at
// turn end and cancellation, so no invocation survives a turn boundary
// unflushed.
func (t *Translator) Flush() error {
	if t.pending == nil {
		return nil
	}
	pending := t.pending
	t.pending = nil

	return t.sender.Send(models.ToolCallCompleteEvent{
		Type:       "tool_call_complete",
		ToolCallID: pending.id,
		ToolName:   pending.name,
		Arguments:  parseToolArguments(pending.args.String()),
	})
}

// parseToolArguments parses an accumulated arguments string. Blank parses to
// an empty object; a syntactically invalid accumulation degrades to an empty
// object rather than failing the turn.
func parseToolArguments(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Debugf("Tool call arguments did not parse, sending empty object: %v", err)
		return map[string]any{}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}
