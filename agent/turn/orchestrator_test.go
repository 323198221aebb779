package turn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/agent/stream"
)

type fakeSub struct {
	ch     chan stream.ProgressEvent
	closes int
}

func (s *fakeSub) Events() <-chan stream.ProgressEvent { return s.ch }
func (s *fakeSub) Close()                              { s.closes++ }

// fakeService scripts one set of prompt errors and stream events per attempt.
type fakeService struct {
	createErr       error
	promptErrs      []error
	eventsByAttempt [][]stream.ProgressEvent
	// status overrides the StatusBusy default for every poll.
	status Status

	attempt    int
	prompts    []string
	subs       []*fakeSub
	closeCalls int
}

func (f *fakeService) CreateSession(ctx context.Context, directory string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "ses_a", nil
}

func (f *fakeService) Events(ctx context.Context, sessionID string) (Subscription, error) {
	sub := &fakeSub{ch: make(chan stream.ProgressEvent, 64)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeService) Prompt(ctx context.Context, sessionID, text string, attachments []Attachment) error {
	i := f.attempt
	f.attempt++
	f.prompts = append(f.prompts, text)
	if i < len(f.promptErrs) && f.promptErrs[i] != nil {
		return f.promptErrs[i]
	}
	if i < len(f.eventsByAttempt) {
		for _, ev := range f.eventsByAttempt[i] {
			f.subs[len(f.subs)-1].ch <- ev
		}
	}
	return nil
}

func (f *fakeService) Status(ctx context.Context, sessionID string) (Status, error) {
	if f.status != nil {
		return f.status, nil
	}
	return StatusBusy{}, nil
}

func (f *fakeService) Close() error {
	f.closeCalls++
	return nil
}

func tokensEvent(total int64, model string) stream.ProgressEvent {
	return stream.MessageUpdated{Info: records.Message{
		SessionID: "ses_a",
		Role:      records.RoleAssistant,
		ModelID:   model,
		Tokens:    &records.TokenUsage{Output: total},
		Cost:      0.1,
	}}
}

func idleEvent() stream.ProgressEvent {
	return stream.SessionIdle{SessionID: "ses_a"}
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		RetryBackoff:   time.Millisecond,
		OverallTimeout: 10 * time.Second,
		DrainGrace:     time.Second,
		Poller: Poller{
			Interval:      time.Millisecond,
			Timeout:       time.Second,
			FirstActivity: time.Second,
			RetryGrace:    3,
		},
	}
}

type nopSink struct{}

func (nopSink) Text(string)                 {}
func (nopSink) Tool(name, _, output string) {}

func TestOrchestratorSuccess(t *testing.T) {
	t.Parallel()

	svc := &fakeService{eventsByAttempt: [][]stream.ProgressEvent{
		{tokensEvent(40, "big-model"), idleEvent()},
	}}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{Prompt: "fix the bug", Directory: "/work"})
	require.True(t, res.Success)
	require.Zero(t, res.ExitCode)
	require.Equal(t, "ses_a", res.TurnID)
	require.Equal(t, int64(40), res.TokenUsage)
	require.Equal(t, "big-model", res.Model)
	require.Equal(t, 0.1, res.Cost)
	require.Empty(t, res.Error)
	require.GreaterOrEqual(t, res.DurationMS, int64(0))

	require.Equal(t, []string{"fix the bug"}, svc.prompts)
	require.Equal(t, 1, svc.closeCalls)
	require.GreaterOrEqual(t, svc.subs[0].closes, 1)
}

func TestOrchestratorReusesSession(t *testing.T) {
	t.Parallel()

	svc := &fakeService{eventsByAttempt: [][]stream.ProgressEvent{{idleEvent()}}}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{Prompt: "continue", SessionID: "ses_a"})
	require.True(t, res.Success)
	require.Equal(t, "ses_a", res.TurnID)
}

func TestOrchestratorRetryKeepsOnlyFinalAccounting(t *testing.T) {
	t.Parallel()

	// Attempt one fails in transit; attempt two completes. Only the second
	// attempt's totals may surface.
	svc := &fakeService{
		promptErrs: []error{errors.New("connection refused")},
		eventsByAttempt: [][]stream.ProgressEvent{
			nil,
			{tokensEvent(77, "big-model"), idleEvent()},
		},
	}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{Prompt: "do the thing"})
	require.True(t, res.Success)
	require.Equal(t, int64(77), res.TokenUsage)

	require.Len(t, svc.prompts, 2)
	require.Equal(t, "do the thing", svc.prompts[0])
	require.Equal(t, ContinuationPrompt, svc.prompts[1])
}

func TestOrchestratorTransientSessionErrorRetries(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	// The failed attempt's poller only stops on its own timeout; keep it short.
	cfg.Poller.Timeout = 30 * time.Millisecond

	svc := &fakeService{eventsByAttempt: [][]stream.ProgressEvent{
		{stream.SessionError{SessionID: "ses_a", Error: stream.ErrorInfo{Message: "fetch failed"}}},
		{tokensEvent(5, "m"), idleEvent()},
	}}
	o := NewOrchestrator(svc, nopSink{}, cfg)

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.True(t, res.Success)
	require.Equal(t, 2, svc.attempt)
}

func TestOrchestratorAgentConfigErrorAborts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Poller.Timeout = 30 * time.Millisecond

	svc := &fakeService{eventsByAttempt: [][]stream.ProgressEvent{
		{stream.SessionError{SessionID: "ses_a", Error: stream.ErrorInfo{Message: "model not found"}}},
	}}
	o := NewOrchestrator(svc, nopSink{}, cfg)

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)
	require.Equal(t, 1, res.ExitCode)
	require.Contains(t, res.Error, "model not found")
	require.Equal(t, 1, svc.attempt, "config errors must not be retried")
}

func TestOrchestratorNonTransientPromptError(t *testing.T) {
	t.Parallel()

	svc := &fakeService{promptErrs: []error{errors.New("400 bad request")}}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "send prompt")
	require.Equal(t, 1, svc.attempt)
	require.Equal(t, 1, svc.closeCalls)
}

func TestOrchestratorExhaustsAttempts(t *testing.T) {
	t.Parallel()

	svc := &fakeService{promptErrs: []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)
	require.Equal(t, 3, svc.attempt)
	require.Contains(t, res.Error, "connection refused")
}

func TestOrchestratorOverallTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.OverallTimeout = 30 * time.Millisecond

	// The turn never produces events and never goes idle.
	svc := &fakeService{}
	o := NewOrchestrator(svc, nopSink{}, cfg)

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)
	require.Equal(t, 2, res.ExitCode)
	require.NotEmpty(t, res.Error)
}

func TestOrchestratorNoActivityAborts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Poller.FirstActivity = 10 * time.Millisecond

	// The session accepts the prompt but the remote process never emits a
	// single event: a timeout-class failure, never a retry.
	svc := &fakeService{}
	o := NewOrchestrator(svc, nopSink{}, cfg)

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)
	require.Equal(t, 2, res.ExitCode)
	require.Contains(t, res.Error, "no activity")
	require.Equal(t, 1, svc.attempt, "a silent turn must not get a continuation prompt")
	require.Equal(t, []string{"go"}, svc.prompts)
}

func TestOrchestratorPollFailureRetriesOnlyTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		message      string
		wantAttempts int
	}{
		{"transient retry message", "socket hang up", 3},
		{"generic retry message", "quota exceeded", 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{status: StatusRetry{Attempt: 1, Message: tc.message}}
			o := NewOrchestrator(svc, nopSink{}, testConfig())

			res := o.Run(context.Background(), RunInput{Prompt: "go"})
			require.False(t, res.Success)
			require.Equal(t, 1, res.ExitCode)
			require.Contains(t, res.Error, tc.message)
			require.Equal(t, tc.wantAttempts, svc.attempt)
		})
	}
}

func TestOrchestratorResultArraysNeverNull(t *testing.T) {
	t.Parallel()

	// Success without any PR or commit events, and outright failure, both
	// serialize the arrays as empty, not null.
	svc := &fakeService{eventsByAttempt: [][]stream.ProgressEvent{{idleEvent()}}}
	o := NewOrchestrator(svc, nopSink{}, testConfig())
	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.True(t, res.Success)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(data), `"prsCreated":[]`)
	require.Contains(t, string(data), `"commitsCreated":[]`)

	svc = &fakeService{createErr: errors.New("503")}
	o = NewOrchestrator(svc, nopSink{}, testConfig())
	res = o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)

	data, err = json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(data), `"prsCreated":[]`)
	require.Contains(t, string(data), `"commitsCreated":[]`)
}

func TestOrchestratorEmptyPrompt(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{})
	require.False(t, res.Success)
	require.Equal(t, ErrEmptyPrompt.Error(), res.Error)
	require.Zero(t, svc.attempt)
}

func TestOrchestratorCreateSessionError(t *testing.T) {
	t.Parallel()

	svc := &fakeService{createErr: errors.New("503")}
	o := NewOrchestrator(svc, nopSink{}, testConfig())

	res := o.Run(context.Background(), RunInput{Prompt: "go"})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "create session")
	require.Equal(t, 1, svc.closeCalls, "teardown runs even when no turn started")
}
