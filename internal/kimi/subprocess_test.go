package kimi

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteUserMessage(t *testing.T) {
	var buf bytes.Buffer
	err := writeUserMessage(&buf, []ContentPart{
		TextPart{Text: "hello"},
		ImageURLPart{URL: "data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)

	line := buf.String()
	assert.Equal(t, byte('\n'), line[len(line)-1])

	var msg struct {
		Type    string `json:"type"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(line), &msg))
	assert.Equal(t, "user", msg.Type)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "text", msg.Content[0].Type)
	assert.Equal(t, "hello", msg.Content[0].Text)
	assert.Equal(t, "image_url", msg.Content[1].Type)
	assert.Equal(t, "data:image/png;base64,AAAA", msg.Content[1].ImageURL.URL)
}

func TestWireLineToFragment(t *testing.T) {
	st := &cliStream{}

	cases := []struct {
		name string
		line string
		want Fragment
	}{
		{"text", `{"type": "text", "text": "hi"}`, TextFragment{Text: "hi"}},
		{"think", `{"type": "think", "think": "hm"}`, ThinkFragment{Think: "hm"}},
		{"tool_call", `{"type": "tool_call", "id": "c1", "name": "ls", "arguments": "{}"}`, ToolCallFragment{ID: "c1", Name: "ls", Arguments: "{}"}},
		{"tool_call_part", `{"type": "tool_call_part", "arguments_part": "x"}`, ToolCallChunkFragment{ArgumentsPart: "x"}},
		{"tool_result", `{"type": "tool_result", "tool_call_id": "c1", "message": "ok", "output": "out", "is_error": true}`, ToolResultFragment{ToolCallID: "c1", Message: "ok", Output: "out", IsError: true}},
		{"status", `{"type": "status", "context_usage": 0.25, "token_usage": {"input": 12.0}}`, StatusFragment{ContextUsage: 0.25, TokenUsage: map[string]any{"input": 12.0}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var wl wireLine
			require.NoError(t, json.Unmarshal([]byte(tc.line), &wl))
			assert.Equal(t, tc.want, st.toFragment(wl))
		})
	}
}

func TestWireLineBookkeepingIgnored(t *testing.T) {
	st := &cliStream{}

	var wl wireLine
	require.NoError(t, json.Unmarshal([]byte(`{"type": "checkpoint"}`), &wl))
	assert.Nil(t, st.toFragment(wl))
}

func TestApprovalFragmentCarriesResolver(t *testing.T) {
	st := &cliStream{}

	var wl wireLine
	require.NoError(t, json.Unmarshal([]byte(`{"type": "approval_request", "id": "a1", "action": "run_command", "description": "ls"}`), &wl))

	frag, ok := st.toFragment(wl).(ApprovalRequestFragment)
	require.True(t, ok)
	assert.Equal(t, "run_command", frag.Action)
	assert.Equal(t, "ls", frag.Description)
	assert.NotNil(t, frag.Resolve)
}
