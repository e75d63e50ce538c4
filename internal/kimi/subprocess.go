package kimi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/legionhq/legion/internal/logger"
)

const maxWireLineSize = 4 * 1024 * 1024

// CLILauncher drives the kimi CLI as a subprocess in wire mode: one process
// per turn, stream-JSON on stdout decoded into fragments, approval decisions
// written back on stdin.
type CLILauncher struct {
	binPath string
}

// NewCLILauncher creates a launcher for the kimi binary on PATH
func NewCLILauncher() *CLILauncher {
	binPath := "kimi"
	if _, err := exec.LookPath(binPath); err != nil {
		logger.Warnf("kimi binary not found in PATH, sessions will fail to start")
	}
	return &CLILauncher{binPath: binPath}
}

// Resume reattaches to an existing session. The runtime keeps one context log
// per (work dir, session id); when none exists there is nothing to resume.
func (l *CLILauncher) Resume(workDir, sessionID string, opts SessionOptions) (Session, error) {
	if ContextFilePath(workDir, sessionID) == "" {
		return nil, nil
	}
	return newCLISession(l.binPath, workDir, sessionID, opts), nil
}

// Create starts a fresh session for the given key
func (l *CLILauncher) Create(workDir, sessionID string, opts SessionOptions) (Session, error) {
	return newCLISession(l.binPath, workDir, sessionID, opts), nil
}

type cliSession struct {
	binPath   string
	workDir   string
	sessionID string
	opts      SessionOptions

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

func newCLISession(binPath, workDir, sessionID string, opts SessionOptions) *cliSession {
	return &cliSession{
		binPath:   binPath,
		workDir:   workDir,
		sessionID: sessionID,
		opts:      opts,
	}
}

func (s *cliSession) Prompt(ctx context.Context, parts []ContentPart) (FragmentStream, error) {
	runCtx, cancel := context.WithCancel(ctx)

	args := []string{
		"--print",
		"--output-format=stream-json",
		"--input-format=stream-json",
		"--session", s.sessionID,
	}
	if s.opts.Model != "" {
		args = append(args, "--model", s.opts.Model)
	}
	if s.opts.Thinking {
		args = append(args, "--thinking")
	}

	cmd := exec.CommandContext(runCtx, s.binPath, args...)
	cmd.Env = os.Environ()

	// Resolve symlinks so the runtime hashes the same work dir path we do
	if resolved, err := filepath.EvalSymlinks(s.workDir); err == nil {
		cmd.Dir = resolved
	} else {
		cmd.Dir = s.workDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start kimi command: %w", err)
	}

	if err := writeUserMessage(stdin, parts); err != nil {
		cancel()
		_ = cmd.Wait()
		return nil, err
	}

	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxWireLineSize)

	return &cliStream{
		ctx:     runCtx,
		cmd:     cmd,
		stdin:   stdin,
		scanner: scanner,
	}, nil
}

func (s *cliSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
}

func (s *cliSession) Close() error {
	s.Cancel()
	return nil
}

func (s *cliSession) Model() string {
	return s.opts.Model
}

// writeUserMessage sends the turn's prompt as one stream-JSON line. stdin
// stays open afterwards for approval responses.
func writeUserMessage(stdin io.Writer, parts []ContentPart) error {
	content := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case TextPart:
			content = append(content, map[string]any{"type": "text", "text": p.Text})
		case ImageURLPart:
			content = append(content, map[string]any{"type": "image_url", "image_url": map[string]string{"url": p.URL}})
		}
	}
	message := map[string]any{
		"type":    "user",
		"content": content,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal user message: %w", err)
	}
	if _, err := stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write user message: %w", err)
	}
	return nil
}

// wireLine is the envelope of one stream-JSON line from the CLI
type wireLine struct {
	Type          string         `json:"type"`
	Text          string         `json:"text,omitempty"`
	Think         string         `json:"think,omitempty"`
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Arguments     string         `json:"arguments,omitempty"`
	ArgumentsPart string         `json:"arguments_part,omitempty"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	Message       string         `json:"message,omitempty"`
	Output        string         `json:"output,omitempty"`
	IsError       bool           `json:"is_error,omitempty"`
	Action        string         `json:"action,omitempty"`
	Description   string         `json:"description,omitempty"`
	ContextUsage  float64        `json:"context_usage,omitempty"`
	TokenUsage    map[string]any `json:"token_usage,omitempty"`
}

type cliStream struct {
	ctx     context.Context
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner

	stdinMu  sync.Mutex
	waitOnce sync.Once
	waitErr  error
}

func (st *cliStream) Next() (Fragment, error) {
	for st.scanner.Scan() {
		line := st.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var wl wireLine
		if err := json.Unmarshal(line, &wl); err != nil {
			// Skip invalid JSON lines
			continue
		}

		if frag := st.toFragment(wl); frag != nil {
			return frag, nil
		}
	}

	st.finish()

	if st.ctx.Err() == context.Canceled {
		return nil, ErrCancelled
	}
	if st.waitErr != nil {
		return nil, fmt.Errorf("kimi command failed: %w", st.waitErr)
	}
	return nil, io.EOF
}

func (st *cliStream) finish() {
	st.waitOnce.Do(func() {
		_ = st.stdin.Close()
		st.waitErr = st.cmd.Wait()
	})
}

func (st *cliStream) toFragment(wl wireLine) Fragment {
	switch wl.Type {
	case "text":
		return TextFragment{Text: wl.Text}
	case "think":
		return ThinkFragment{Think: wl.Think}
	case "tool_call":
		return ToolCallFragment{ID: wl.ID, Name: wl.Name, Arguments: wl.Arguments}
	case "tool_call_part":
		return ToolCallChunkFragment{ArgumentsPart: wl.ArgumentsPart}
	case "tool_result":
		return ToolResultFragment{ToolCallID: wl.ToolCallID, Message: wl.Message, Output: wl.Output, IsError: wl.IsError}
	case "approval_request":
		requestID := wl.ID
		return ApprovalRequestFragment{
			Action:      wl.Action,
			Description: wl.Description,
			Resolve: func(decision string) {
				st.respondApproval(requestID, decision)
			},
		}
	case "status":
		return StatusFragment{ContextUsage: wl.ContextUsage, TokenUsage: wl.TokenUsage}
	default:
		// Bookkeeping lines (checkpoints, usage) are not surfaced
		return nil
	}
}

func (st *cliStream) respondApproval(requestID, decision string) {
	st.stdinMu.Lock()
	defer st.stdinMu.Unlock()
	response := map[string]string{
		"type":     "approval_response",
		"id":       requestID,
		"decision": decision,
	}
	data, err := json.Marshal(response)
	if err != nil {
		return
	}
	if _, err := st.stdin.Write(append(data, '\n')); err != nil {
		logger.Debugf("failed to write approval response: %v", err)
	}
}
