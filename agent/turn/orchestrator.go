package turn

import (
	"context"
	"time"

	"github.com/prometheus/common/version"

	"github.com/hatcher/pilot/agent/stream"
	"github.com/hatcher/pilot/pkg/logs"
	"github.com/hatcher/pilot/pkg/safego"
)

// ContinuationPrompt replaces the original prompt on retry attempts. The
// original attachments are not re-sent: the service still holds them on the
// session, and a failed attempt may already have consumed them.
const ContinuationPrompt = "Continue working on the previous request from where it was interrupted. " +
	"If everything was already completed, summarize the work that was done."

type Config struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	OverallTimeout time.Duration
	// DrainGrace bounds the wait for the stream processor to flush after
	// the poller has decided the attempt is over.
	DrainGrace time.Duration
	Poller     Poller
}

const (
	defaultMaxAttempts    = 4
	defaultRetryBackoff   = 5 * time.Second
	defaultOverallTimeout = 30 * time.Minute
	defaultDrainGrace     = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = defaultOverallTimeout
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = defaultDrainGrace
	}
	return c
}

type RunInput struct {
	Prompt      string
	Attachments []Attachment
	// SessionID reuses an existing session; empty creates one.
	SessionID string
	Directory string
}

// AgentResult is the sole contract the host-side caller depends on.
type AgentResult struct {
	Success        bool     `json:"success"`
	ExitCode       int      `json:"exitCode"`
	DurationMS     int64    `json:"durationMs"`
	TurnID         string   `json:"turnId"`
	Error          string   `json:"error,omitempty"`
	TokenUsage     int64    `json:"tokenUsage"`
	Model          string   `json:"model,omitempty"`
	Cost           float64  `json:"cost"`
	PRsCreated     []string `json:"prsCreated"`
	CommitsCreated []string `json:"commitsCreated"`
	CommentsPosted int      `json:"commentsPosted"`
}

// Orchestrator runs one turn to completion: it races the event stream
// against the completion poller, retries transient failures with a
// continuation prompt, and guarantees teardown on every path.
type Orchestrator struct {
	service Service
	sink    stream.Sink
	cfg     Config
}

func NewOrchestrator(service Service, sink stream.Sink, cfg Config) *Orchestrator {
	return &Orchestrator{service: service, sink: sink, cfg: cfg.withDefaults()}
}

type attemptOutcome struct {
	result    stream.Result
	success   bool
	transient bool
	timeout   bool
	errMsg    string
}

func (o *Orchestrator) Run(ctx context.Context, in RunInput) AgentResult {
	start := time.Now()
	result := AgentResult{
		ExitCode:       1,
		PRsCreated:     []string{},
		CommitsCreated: []string{},
	}
	if in.Prompt == "" {
		result.Error = ErrEmptyPrompt.Error()
		return result
	}

	logs.Infof("turn: starting (pilot %s, max %d attempts, budget %s)",
		version.Version, o.cfg.MaxAttempts, o.cfg.OverallTimeout)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.OverallTimeout)
	defer cancel()

	// Teardown must survive anything the attempt loop (or an earlier
	// deferred cleanup) throws; it gets its own recover.
	defer func() {
		defer safego.Recovery()
		if err := o.service.Close(); err != nil {
			logs.Warnf("turn: service close: %v", err)
		}
	}()

	sessionID := in.SessionID
	if sessionID == "" {
		id, err := o.service.CreateSession(ctx, in.Directory)
		if err != nil {
			result.Error = "create session: " + err.Error()
			result.DurationMS = time.Since(start).Milliseconds()
			return result
		}
		if id == "" {
			result.Error = ErrNoSession.Error()
			result.DurationMS = time.Since(start).Milliseconds()
			return result
		}
		sessionID = id
	}
	result.TurnID = sessionID

	var final *stream.Result
	var lastErr string
	timedOut := false

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		prompt, attachments := in.Prompt, in.Attachments
		if attempt > 1 {
			prompt, attachments = ContinuationPrompt, nil
		}

		outcome := o.runAttempt(ctx, sessionID, prompt, attachments)
		if outcome.success {
			// Only the succeeding attempt's accounting survives; failed
			// attempts may have produced nothing usable.
			res := outcome.result
			final = &res
			break
		}
		lastErr = outcome.errMsg
		logs.Warnf("turn: attempt %d/%d failed: %s", attempt, o.cfg.MaxAttempts, lastErr)
		if outcome.timeout {
			timedOut = true
			break
		}
		if !outcome.transient || attempt == o.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			timedOut = true
		case <-time.After(o.cfg.RetryBackoff):
		}
		if timedOut {
			break
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	if final != nil {
		result.TokenUsage = final.Tokens.Total()
		result.Model = final.Model
		result.Cost = final.Cost
		if final.PRsCreated != nil {
			result.PRsCreated = final.PRsCreated
		}
		if final.CommitsCreated != nil {
			result.CommitsCreated = final.CommitsCreated
		}
		result.CommentsPosted = final.CommentsPosted
		result.Success = true
		result.ExitCode = 0
		return result
	}

	if timedOut || ctx.Err() != nil {
		result.ExitCode = 2
		if lastErr == "" {
			lastErr = ErrTimeout.Error()
		}
	}
	result.Error = lastErr
	return result
}

// runAttempt performs one subscribe → prompt → poll → drain cycle.
func (o *Orchestrator) runAttempt(ctx context.Context, sessionID, prompt string, attachments []Attachment) attemptOutcome {
	tracker := stream.NewTracker()
	streamCtx, cancelStream := context.WithCancel(ctx)

	sub, err := o.service.Events(streamCtx, sessionID)
	if err != nil {
		cancelStream()
		return attemptOutcome{transient: isTransient(err), errMsg: "subscribe events: " + err.Error()}
	}

	resCh := make(chan stream.Result, 1)
	processor := stream.NewProcessor(o.sink, tracker)
	safego.Go(func() {
		resCh <- processor.Run(streamCtx, sub.Events(), sessionID)
	})

	// Cancelling consumption is not enough; the upstream subscription has
	// to be closed explicitly. Both are idempotent.
	teardown := func() {
		cancelStream()
		sub.Close()
	}

	if err := o.service.Prompt(ctx, sessionID, prompt, attachments); err != nil {
		teardown()
		return attemptOutcome{transient: isTransient(err), errMsg: "send prompt: " + err.Error()}
	}

	poll := o.cfg.Poller.Run(ctx, sessionID, o.service, tracker)
	teardown()

	var res stream.Result
	select {
	case res = <-resCh:
	case <-time.After(o.cfg.DrainGrace):
		logs.Warnf("turn: stream processor did not drain within %s", o.cfg.DrainGrace)
	}

	if res.TerminalErr != nil {
		return attemptOutcome{
			result:    res,
			transient: res.TerminalErr.Kind == stream.ErrTransient,
			errMsg:    res.TerminalErr.Error(),
		}
	}

	switch poll.Outcome {
	case PollIdle:
		return attemptOutcome{result: res, success: true}
	case PollTimeout:
		return attemptOutcome{result: res, timeout: true, errMsg: "turn timed out: " + poll.Message}
	case PollNoActivity:
		// A remote process that never produced output is a budget failure,
		// not a retry candidate: the continuation prompt has nothing to
		// continue from.
		return attemptOutcome{result: res, timeout: true, errMsg: poll.Message}
	case PollAborted:
		return attemptOutcome{result: res, errMsg: "turn aborted: " + poll.Message}
	default:
		// The service's own retry loop gave up; whether another prompt is
		// worthwhile depends on what it was retrying.
		transient := stream.Classify("", poll.Message) == stream.ErrTransient
		return attemptOutcome{result: res, transient: transient, errMsg: poll.Message}
	}
}
