// Package directory answers read-only questions about past sessions: what
// exists for a project, what a session contains, and where a piece of text
// was said. It never mutates the store.
package directory

import (
	"context"
	"sort"
	"time"

	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/pkg/logs"
)

const defaultListLimit = 20

type ListOptions struct {
	Limit int
	// From/To bound the session's last-update time. Zero values are open.
	From time.Time
	To   time.Time
}

// SessionSummary is one listing row: the session plus aggregates derived
// from its messages.
type SessionSummary struct {
	Session      records.Session
	MessageCount int
	Agents       []string
}

// ListSessions returns the project's main sessions, most recently updated
// first, truncated to the limit. Children are never listed.
func ListSessions(ctx context.Context, backend records.Backend, directory string, opts ListOptions) ([]SessionSummary, error) {
	sessions, err := backend.Sessions(ctx, directory)
	if err != nil {
		return nil, err
	}

	main := make([]records.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsChild() {
			continue
		}
		updated := s.UpdatedAt()
		if !opts.From.IsZero() && updated.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && updated.After(opts.To) {
			continue
		}
		main = append(main, s)
	}

	sortByRecency(main)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(main) > limit {
		main = main[:limit]
	}

	summaries := make([]SessionSummary, 0, len(main))
	for _, s := range main {
		msgs, err := backend.Messages(ctx, s.ID)
		if err != nil {
			// Listing is opportunistic; a broken session still gets a row.
			logs.Warnf("directory: reading messages of %s: %v", s.ID, err)
		}
		summaries = append(summaries, SessionSummary{
			Session:      s,
			MessageCount: len(msgs),
			Agents:       agentNames(msgs),
		})
	}
	return summaries, nil
}

// SessionInfo aggregates message and todo statistics for one session. A nil
// result means the session does not exist.
type Info struct {
	Session        records.Session
	MessageCount   int
	Agents         []string
	HasTodos       bool
	TodoCount      int
	CompletedTodos int
}

func SessionInfo(ctx context.Context, backend records.Backend, sessionID string) (*Info, error) {
	session, err := backend.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	msgs, err := backend.Messages(ctx, sessionID)
	if err != nil {
		logs.Warnf("directory: reading messages of %s: %v", sessionID, err)
	}
	todos, err := backend.Todos(ctx, sessionID)
	if err != nil {
		logs.Warnf("directory: reading todos of %s: %v", sessionID, err)
	}

	completed := 0
	for _, todo := range todos {
		if todo.Status == records.TodoCompleted {
			completed++
		}
	}
	return &Info{
		Session:        *session,
		MessageCount:   len(msgs),
		Agents:         agentNames(msgs),
		HasTodos:       len(todos) > 0,
		TodoCount:      len(todos),
		CompletedTodos: completed,
	}, nil
}

func sortByRecency(sessions []records.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})
}

// agentNames collects the distinct agents that produced assistant messages,
// in alphabetical order.
func agentNames(msgs []records.Message) []string {
	set := map[string]bool{}
	for _, m := range msgs {
		if m.Role == records.RoleAssistant && m.Agent != "" {
			set[m.Agent] = true
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
