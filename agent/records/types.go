// Package records defines the persisted record model of the agent service
// (projects, sessions, messages, parts, todos) and the storage backends that
// read and write it. Records are created lazily by the remote agent during a
// turn; absence of any record is a normal condition, never an error.
package records

import (
	"sort"
	"time"
)

// Project identifies a working directory the agent operates in.
type Project struct {
	ID       string      `json:"id"`
	Worktree string      `json:"worktree"`
	Time     ProjectTime `json:"time"`
}

type ProjectTime struct {
	Created int64 `json:"created"`
}

// SessionTime carries unix-millisecond timestamps.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Session is one conversational unit. A non-nil ParentID marks a child
// session branched from a parent; children never appear in main listings.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Directory string      `json:"directory"`
	Title     string      `json:"title"`
	Version   string      `json:"version,omitempty"`
	ParentID  *string     `json:"parentID,omitempty"`
	Time      SessionTime `json:"time"`
}

// IsChild reports whether the session was branched from a parent.
func (s Session) IsChild() bool {
	return s.ParentID != nil && *s.ParentID != ""
}

// UpdatedAt returns the last-update time of the session.
func (s Session) UpdatedAt() time.Time {
	return time.UnixMilli(s.Time.Updated)
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type MessageTime struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed,omitempty"`
}

// TokenUsage mirrors the service's per-message token accounting.
type TokenUsage struct {
	Input     int64      `json:"input"`
	Output    int64      `json:"output"`
	Reasoning int64      `json:"reasoning"`
	Cache     CacheUsage `json:"cache"`
}

type CacheUsage struct {
	Read  int64 `json:"read"`
	Write int64 `json:"write"`
}

// Total counts every token the turn paid for.
func (t TokenUsage) Total() int64 {
	return t.Input + t.Output + t.Reasoning + t.Cache.Read + t.Cache.Write
}

// Message is one exchange unit within a session. Agent, ModelID, Tokens and
// Cost are only populated on assistant messages.
type Message struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionID"`
	Role       MessageRole `json:"role"`
	Time       MessageTime `json:"time"`
	Agent      string      `json:"agent,omitempty"`
	ModelID    string      `json:"modelID,omitempty"`
	ProviderID string      `json:"providerID,omitempty"`
	Cost       float64     `json:"cost,omitempty"`
	Tokens     *TokenUsage `json:"tokens,omitempty"`

	// Parts is populated by backends (inlined by the remote API, joined from
	// the part directory by the local backend). It is not part of the message
	// record itself.
	Parts []Part `json:"-"`
}

// SortMessages orders messages by creation time. The underlying stores do
// not guarantee any ordering, so every consumer must sort before use.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Time.Created < msgs[j].Time.Created
	})
}

type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoCancelled  TodoStatus = "cancelled"
)

type TodoPriority string

const (
	TodoHigh   TodoPriority = "high"
	TodoMedium TodoPriority = "medium"
	TodoLow    TodoPriority = "low"
)

// TodoItem is a per-session task entry. Read-only from this core.
type TodoItem struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	Status   TodoStatus   `json:"status"`
	Priority TodoPriority `json:"priority"`
}
