package kimi

import "strings"

// RenderToolResult renders a tool result the same way the runtime builds the
// role=tool message it appends to its own context, so what the client shows
// matches exactly what the model sees: the runtime's status message wrapped
// in a <system> tag, then the tool output, newline-joined.
func RenderToolResult(res ToolResultFragment) string {
	var parts []string
	if res.Message != "" {
		parts = append(parts, "<system>"+res.Message+"</system>")
	}
	if res.Output != "" {
		parts = append(parts, res.Output)
	}
	return strings.Join(parts, "\n")
}
