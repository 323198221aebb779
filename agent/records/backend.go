package records

import "context"

// Backend is the uniform storage contract shared by the local record tree
// and the remote API client. Every component takes its Backend as an
// explicit argument; there is no package-level default, so swapping
// backends can never silently strand one component on the wrong store.
//
// Read methods return empty results (or nil pointers) when records are
// absent: the agent creates records lazily and absence is expected.
type Backend interface {
	// Sessions lists every session (children included) belonging to the
	// project that owns the working directory. Order is unspecified.
	Sessions(ctx context.Context, directory string) ([]Session, error)

	// Session fetches a single session by id, nil when not found.
	Session(ctx context.Context, id string) (*Session, error)

	// Messages returns a session's messages with parts attached, sorted by
	// creation time.
	Messages(ctx context.Context, sessionID string) ([]Message, error)

	// Todos returns a session's task list, empty when none was written.
	Todos(ctx context.Context, sessionID string) ([]TodoItem, error)

	// CreateMessage and CreatePart append synthetic records (summary
	// writeback). Ids are assigned by the caller via agent/ident so the
	// records are indistinguishable from service-written ones.
	CreateMessage(ctx context.Context, m Message) error
	CreatePart(ctx context.Context, p Part) error

	// TouchSession bumps the session's time.updated to now.
	TouchSession(ctx context.Context, id string) error

	// DeleteSession removes the session record and everything hanging off
	// it (messages, parts, todos) and reports the bytes reclaimed. Child
	// sessions are separate records; cascading over them is the caller's
	// job.
	DeleteSession(ctx context.Context, id string) (int64, error)
}
