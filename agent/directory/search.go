package directory

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/search"

	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/pkg/logs"
)

// maxSearchMatches is the hard per-call ceiling; a caller-provided limit is
// clamped to it.
const maxSearchMatches = 50

const excerptRadius = 80

// scanConcurrency bounds the parallel message fetches during a search.
const scanConcurrency = 4

type SearchOptions struct {
	Limit         int
	CaseSensitive bool
}

type SearchMatch struct {
	MessageID string
	PartID    string
	Role      records.MessageRole
	Excerpt   string
}

// SearchResult groups a session's matches. Sessions without matches are
// omitted entirely.
type SearchResult struct {
	Session records.Session
	Matches []SearchMatch
}

// SearchSessions scans the text-bearing parts (text parts and completed
// tool output) of every session in the project for a substring. Matching is
// case-folded unless CaseSensitive. Results are ordered by session recency
// and capped globally.
func SearchSessions(ctx context.Context, backend records.Backend, directory, query string, opts SearchOptions) ([]SearchResult, error) {
	if query == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 || limit > maxSearchMatches {
		limit = maxSearchMatches
	}

	sessions, err := backend.Sessions(ctx, directory)
	if err != nil {
		return nil, err
	}
	sortByRecency(sessions)

	matcher := newMatcher(query, opts.CaseSensitive)

	// Scan sessions concurrently but keep results positionally stable so
	// output order is deterministic regardless of completion order.
	perSession := make([][]SearchMatch, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, s := range sessions {
		g.Go(func() error {
			msgs, err := backend.Messages(gctx, s.ID)
			if err != nil {
				logs.Warnf("directory: search skipping session %s: %v", s.ID, err)
				return nil
			}
			perSession[i] = scanMessages(msgs, matcher, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []SearchResult
	total := 0
	for i, s := range sessions {
		matches := perSession[i]
		if len(matches) == 0 {
			continue
		}
		if total+len(matches) > limit {
			matches = matches[:limit-total]
		}
		results = append(results, SearchResult{Session: s, Matches: matches})
		total += len(matches)
		if total >= limit {
			break
		}
	}
	return results, nil
}

func scanMessages(msgs []records.Message, m *matcher, limit int) []SearchMatch {
	var matches []SearchMatch
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			var text string
			switch payload := part.Payload.(type) {
			case records.TextPart:
				text = payload.Text
			case records.ToolPart:
				if done, ok := payload.State.(records.ToolStateCompleted); ok {
					text = done.Output
				}
			}
			if text == "" {
				continue
			}
			for _, span := range m.find(text) {
				matches = append(matches, SearchMatch{
					MessageID: msg.ID,
					PartID:    part.ID,
					Role:      msg.Role,
					Excerpt:   excerpt(text, span[0], span[1]),
				})
				if len(matches) >= limit {
					return matches
				}
			}
		}
	}
	return matches
}

// matcher finds substring occurrences either byte-exact or case-folded via
// the x/text collation-aware matcher.
type matcher struct {
	query  string
	folded *search.Matcher
}

func newMatcher(query string, caseSensitive bool) *matcher {
	m := &matcher{query: query}
	if !caseSensitive {
		m.folded = search.New(language.Und, search.IgnoreCase)
	}
	return m
}

// find returns the [start, end) byte spans of every occurrence.
func (m *matcher) find(text string) [][2]int {
	var spans [][2]int
	offset := 0
	for offset < len(text) {
		var start, end int
		if m.folded != nil {
			start, end = m.folded.IndexString(text[offset:], m.query)
		} else {
			start = strings.Index(text[offset:], m.query)
			end = start + len(m.query)
		}
		if start < 0 {
			break
		}
		spans = append(spans, [2]int{offset + start, offset + end})
		if end <= start {
			break
		}
		offset += end
	}
	return spans
}

// excerpt returns the match with up to excerptRadius runes of context on
// each side, newlines flattened, ellipsized at cut edges.
func excerpt(text string, start, end int) string {
	runes := []rune(text)
	runeStart := len([]rune(text[:start]))
	runeEnd := runeStart + len([]rune(text[start:end]))

	from := runeStart - excerptRadius
	if from < 0 {
		from = 0
	}
	to := runeEnd + excerptRadius
	if to > len(runes) {
		to = len(runes)
	}

	var sb strings.Builder
	if from > 0 {
		sb.WriteString("…")
	}
	sb.WriteString(string(runes[from:to]))
	if to < len(runes) {
		sb.WriteString("…")
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
