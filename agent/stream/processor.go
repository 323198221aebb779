package stream

import (
	"context"

	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/pkg/logs"
)

// Sink receives the turn's live output. The host wires it to its own
// presentation layer; tests use a recorder.
type Sink interface {
	Text(text string)
	Tool(name, title, output string)
}

// Result is everything one attempt's event stream produced. It is scoped to
// a single attempt and never persisted; the orchestrator keeps only the
// result of the attempt that ultimately succeeds.
type Result struct {
	Tokens         records.TokenUsage
	Model          string
	Cost           float64
	PRsCreated     []string
	CommitsCreated []string
	CommentsPosted int
	TerminalErr    *TerminalError
}

// Processor reduces a session's progress events to a Result.
type Processor struct {
	sink    Sink
	tracker *Tracker
}

func NewProcessor(sink Sink, tracker *Tracker) *Processor {
	return &Processor{sink: sink, tracker: tracker}
}

// Run consumes events until cancellation, stream end, or a terminal event.
// Scalar fields (tokens, model, cost) are last-write-wins; list fields are
// additive with dedup. No ordering beyond arrival order is assumed.
func (p *Processor) Run(ctx context.Context, events <-chan ProgressEvent, sessionID string) Result {
	var res Result
	var buffered string
	seenPRs := map[string]bool{}
	seenCommits := map[string]bool{}

	flush := func() {
		if buffered != "" {
			p.sink.Text(buffered)
			buffered = ""
		}
	}

	for {
		select {
		case <-ctx.Done():
			return res
		case ev, ok := <-events:
			if !ok {
				return res
			}
			if ev == nil || ev.Session() != sessionID {
				continue
			}
			p.tracker.MarkActivity()

			switch e := ev.(type) {
			case PartUpdated:
				p.handlePart(e.Part, &buffered, &res, seenPRs, seenCommits)
			case MessageUpdated:
				if e.Info.Role == records.RoleAssistant {
					if e.Info.Tokens != nil {
						res.Tokens = *e.Info.Tokens
					}
					if e.Info.ModelID != "" {
						res.Model = e.Info.ModelID
					}
					if e.Info.Cost != 0 {
						res.Cost = e.Info.Cost
					}
				}
			case SessionError:
				kind := Classify(e.Error.Name, e.Error.Message)
				logs.Warnf("stream: session %s reported %s error: %s", sessionID, kind, e.Error.Message)
				res.TerminalErr = &TerminalError{Kind: kind, Name: e.Error.Name, Message: e.Error.Message}
				return res
			case SessionIdle:
				flush()
				p.tracker.MarkIdle()
				return res
			}
		}
	}
}

func (p *Processor) handlePart(part records.Part, buffered *string, res *Result, seenPRs, seenCommits map[string]bool) {
	switch payload := part.Payload.(type) {
	case records.TextPart:
		// Buffer in-flight text and emit it once the part stops updating,
		// so a live display never shows a half-written line.
		if payload.Done() {
			p.sink.Text(payload.Text)
			*buffered = ""
		} else {
			*buffered = payload.Text
		}
	case records.ToolPart:
		done, ok := payload.State.(records.ToolStateCompleted)
		if !ok {
			return
		}
		p.sink.Tool(payload.Tool, done.Title, done.Output)
		scanToolArtifacts(payload.Tool, done, res, seenPRs, seenCommits)
	}
}
