// Package retention bounds the session history of a project under a
// combined age/count policy. Eviction requires a session to be beyond BOTH
// thresholds: a session survives while it is recent OR ranked inside the
// top N. A parent's keep/prune decision cascades to all of its descendants.
package retention

import (
	"context"
	"sort"
	"time"

	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/pkg/logs"
)

// Policy defaults; see config.
const (
	DefaultMaxSessions = 50
	DefaultMaxAgeDays  = 30
)

type Policy struct {
	MaxSessions int
	MaxAgeDays  int
}

func (p Policy) withDefaults() Policy {
	if p.MaxSessions <= 0 {
		p.MaxSessions = DefaultMaxSessions
	}
	if p.MaxAgeDays <= 0 {
		p.MaxAgeDays = DefaultMaxAgeDays
	}
	return p
}

// Result is returned to the caller and never persisted.
type Result struct {
	Pruned           int
	Remaining        int
	FreedBytes       int64
	PrunedSessionIDs []string
}

// Prune applies the policy to the project owning the working directory.
// Pruning is opportunistic: deletion failures are logged, still counted as
// pruned, and contribute zero bytes. A directory without a project yields
// the zero Result and no error.
func Prune(ctx context.Context, backend records.Backend, directory string, policy Policy) (Result, error) {
	policy = policy.withDefaults()

	sessions, err := backend.Sessions(ctx, directory)
	if err != nil {
		logs.Warnf("retention: listing sessions for %s: %v", directory, err)
		return Result{}, nil
	}
	if len(sessions) == 0 {
		return Result{}, nil
	}

	var main, children []records.Session
	for _, s := range sessions {
		if s.IsChild() {
			children = append(children, s)
		} else {
			main = append(main, s)
		}
	}
	sort.SliceStable(main, func(i, j int) bool {
		return main[i].Time.Updated > main[j].Time.Updated
	})

	now := time.Now()
	maxAge := time.Duration(policy.MaxAgeDays) * 24 * time.Hour

	keep := map[string]bool{}
	var pruneIDs []string
	for rank, s := range main {
		if rank < policy.MaxSessions || now.Sub(s.UpdatedAt()) < maxAge {
			keep[s.ID] = true
			continue
		}
		pruneIDs = append(pruneIDs, s.ID)
	}

	// Cascade: a child follows its ancestor chain, never its own rank or
	// age. Children of children resolve through repeated passes until the
	// frontier stabilizes.
	pruneSet := map[string]bool{}
	for _, id := range pruneIDs {
		pruneSet[id] = true
	}
	for changed := true; changed; {
		changed = false
		for _, child := range children {
			if pruneSet[child.ID] || keep[child.ID] {
				continue
			}
			parent := *child.ParentID
			switch {
			case pruneSet[parent]:
				pruneSet[child.ID] = true
				pruneIDs = append(pruneIDs, child.ID)
				changed = true
			case keep[parent]:
				keep[child.ID] = true
				changed = true
			}
		}
	}
	// Orphaned children (parent record already gone) follow the keep side:
	// deleting data we cannot attribute is worse than keeping it.

	var freed int64
	for _, id := range pruneIDs {
		bytes, err := backend.DeleteSession(ctx, id)
		if err != nil {
			logs.Warnf("retention: deleting session %s: %v", id, err)
		}
		freed += bytes
	}

	return Result{
		Pruned:           len(pruneIDs),
		Remaining:        len(sessions) - len(pruneIDs),
		FreedBytes:       freed,
		PrunedSessionIDs: pruneIDs,
	}, nil
}
