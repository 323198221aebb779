package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hatcher/pilot/agent/records"
)

// recordSink captures what the processor emits.
type recordSink struct {
	texts []string
	tools []string
}

func (s *recordSink) Text(text string) { s.texts = append(s.texts, text) }
func (s *recordSink) Tool(name, title, output string) {
	s.tools = append(s.tools, name+"/"+title)
}

func runProcessor(t *testing.T, events []ProgressEvent) (*recordSink, *Tracker, Result) {
	t.Helper()
	sink := &recordSink{}
	tracker := NewTracker()
	ch := make(chan ProgressEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	res := NewProcessor(sink, tracker).Run(context.Background(), ch, "ses_a")
	return sink, tracker, res
}

func textEvent(session, text string, done bool) PartUpdated {
	span := &records.PartSpan{Start: 1}
	if done {
		span.End = 2
	}
	return PartUpdated{Part: records.Part{
		ID:        "prt_1",
		SessionID: session,
		Payload:   records.TextPart{Text: text, Time: span},
	}}
}

func TestProcessorBuffersTextUntilDone(t *testing.T) {
	t.Parallel()

	sink, _, _ := runProcessor(t, []ProgressEvent{
		textEvent("ses_a", "Hel", false),
		textEvent("ses_a", "Hello", false),
		textEvent("ses_a", "Hello, world", true),
	})
	// Only the finished text reaches the sink, once.
	require.Equal(t, []string{"Hello, world"}, sink.texts)
}

func TestProcessorFlushesOnIdle(t *testing.T) {
	t.Parallel()

	sink, tracker, _ := runProcessor(t, []ProgressEvent{
		textEvent("ses_a", "half a line", false),
		SessionIdle{SessionID: "ses_a"},
	})
	require.Equal(t, []string{"half a line"}, sink.texts)
	require.True(t, tracker.Idle())
	require.True(t, tracker.SawActivity())
}

func TestProcessorIgnoresOtherSessions(t *testing.T) {
	t.Parallel()

	sink, tracker, res := runProcessor(t, []ProgressEvent{
		textEvent("ses_other", "noise", true),
		MessageUpdated{Info: records.Message{
			SessionID: "ses_other",
			Role:      records.RoleAssistant,
			Tokens:    &records.TokenUsage{Input: 999},
		}},
		SessionIdle{SessionID: "ses_other"},
	})
	require.Empty(t, sink.texts)
	require.False(t, tracker.SawActivity())
	require.False(t, tracker.Idle())
	require.Zero(t, res.Tokens.Total())
}

func TestProcessorTokensLastWriteWins(t *testing.T) {
	t.Parallel()

	_, _, res := runProcessor(t, []ProgressEvent{
		MessageUpdated{Info: records.Message{
			SessionID: "ses_a",
			Role:      records.RoleAssistant,
			ModelID:   "small-model",
			Tokens:    &records.TokenUsage{Input: 10, Output: 5},
			Cost:      0.01,
		}},
		MessageUpdated{Info: records.Message{
			SessionID: "ses_a",
			Role:      records.RoleAssistant,
			ModelID:   "big-model",
			Tokens:    &records.TokenUsage{Input: 100, Output: 50, Cache: records.CacheUsage{Read: 7}},
			Cost:      0.25,
		}},
		// User messages never carry accounting.
		MessageUpdated{Info: records.Message{
			SessionID: "ses_a",
			Role:      records.RoleUser,
		}},
		SessionIdle{SessionID: "ses_a"},
	})
	require.Equal(t, int64(157), res.Tokens.Total())
	require.Equal(t, "big-model", res.Model)
	require.Equal(t, 0.25, res.Cost)
}

func TestProcessorToolCompleted(t *testing.T) {
	t.Parallel()

	sink, _, _ := runProcessor(t, []ProgressEvent{
		PartUpdated{Part: records.Part{
			SessionID: "ses_a",
			Payload: records.ToolPart{
				Tool:  "bash",
				State: records.ToolStateRunning{Title: "Running"},
			},
		}},
		PartUpdated{Part: records.Part{
			SessionID: "ses_a",
			Payload: records.ToolPart{
				Tool:  "bash",
				State: records.ToolStateCompleted{Title: "List files", Output: "a b c"},
			},
		}},
		SessionIdle{SessionID: "ses_a"},
	})
	// Only the completed state is reported.
	require.Equal(t, []string{"bash/List files"}, sink.tools)
}

func TestProcessorSessionError(t *testing.T) {
	t.Parallel()

	_, tracker, res := runProcessor(t, []ProgressEvent{
		textEvent("ses_a", "partial work", true),
		SessionError{SessionID: "ses_a", Error: ErrorInfo{Name: "ProviderError", Message: "fetch failed"}},
		// Nothing after a terminal event is consumed.
		SessionIdle{SessionID: "ses_a"},
	})
	require.NotNil(t, res.TerminalErr)
	require.Equal(t, ErrTransient, res.TerminalErr.Kind)
	require.Equal(t, "ProviderError: fetch failed", res.TerminalErr.Error())
	require.False(t, tracker.Idle())
}

func TestProcessorContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan ProgressEvent)
	done := make(chan Result, 1)
	go func() {
		done <- NewProcessor(&recordSink{}, NewTracker()).Run(ctx, ch, "ses_a")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop on cancellation")
	}
}
