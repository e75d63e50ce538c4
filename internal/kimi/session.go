package kimi

import (
	"context"
	"errors"
)

// ErrCancelled marks the clean termination of a turn after Cancel. It is not
// a failure: consumers flush pending state and complete the turn normally.
var ErrCancelled = errors.New("kimi: run cancelled")

// SessionOptions are the turn-scoped options a session is created with. A
// cached session whose Model differs from a new request must be replaced, not
// silently reused.
type SessionOptions struct {
	Thinking bool
	Model    string
}

// FragmentStream is a finite, single-consumer, non-restartable stream of wire
// fragments for one turn. Next returns io.EOF at normal end of stream and
// ErrCancelled when the turn was cancelled between fragment deliveries.
type FragmentStream interface {
	Next() (Fragment, error)
}

// Session is a live handle to one upstream runtime session. At most one
// prompt may be in flight at a time.
type Session interface {
	// Prompt starts a turn and returns its fragment stream.
	Prompt(ctx context.Context, parts []ContentPart) (FragmentStream, error)
	// Cancel aborts the in-flight turn, if any. Harmless when idle.
	Cancel()
	// Close releases the session. The underlying context log survives so the
	// session can be resumed later.
	Close() error
	// Model reports the model selector the session was created with.
	Model() string
}

// Launcher creates or resumes upstream sessions. It is an interface so tests
// can substitute a fake runtime.
type Launcher interface {
	// Resume reattaches to an existing session. Returns (nil, nil) when there
	// is nothing to resume for the given key.
	Resume(workDir, sessionID string, opts SessionOptions) (Session, error)
	// Create starts a fresh session for the given key.
	Create(workDir, sessionID string, opts SessionOptions) (Session, error)
}
