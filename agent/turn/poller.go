package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/hatcher/pilot/agent/stream"
	"github.com/hatcher/pilot/pkg/logs"
)

type PollOutcome int

const (
	PollIdle PollOutcome = iota
	PollFailed
	PollTimeout
	PollNoActivity
	PollAborted
)

func (o PollOutcome) String() string {
	switch o {
	case PollIdle:
		return "idle"
	case PollFailed:
		return "failed"
	case PollTimeout:
		return "timeout"
	case PollNoActivity:
		return "no-activity"
	case PollAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type PollResult struct {
	Outcome PollOutcome
	Message string
}

// Poller drives the status side of an attempt, independent of the event
// stream. Zero fields take the defaults.
type Poller struct {
	// Interval between status queries.
	Interval time.Duration
	// Timeout is the total elapsed-time budget for one attempt.
	Timeout time.Duration
	// FirstActivity is the budget for the first meaningful stream event;
	// a remote process that crashes before producing output fails here
	// instead of eating the whole Timeout.
	FirstActivity time.Duration
	// RetryGrace is how many consecutive retry statuses are tolerated.
	RetryGrace int
}

const (
	defaultPollInterval  = 1500 * time.Millisecond
	defaultPollTimeout   = 25 * time.Minute
	defaultFirstActivity = 2 * time.Minute
	defaultRetryGrace    = 3
)

func (p Poller) withDefaults() Poller {
	if p.Interval <= 0 {
		p.Interval = defaultPollInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultPollTimeout
	}
	if p.FirstActivity <= 0 {
		p.FirstActivity = defaultFirstActivity
	}
	if p.RetryGrace <= 0 {
		p.RetryGrace = defaultRetryGrace
	}
	return p
}

// Run polls until a terminal state. The tracker's idle flag, set by the
// event stream, short-circuits a full poll round trip. Query failures are
// logged no-op ticks: a flaky poll endpoint must not kill a healthy turn.
func (p Poller) Run(ctx context.Context, sessionID string, src StatusSource, tracker *stream.Tracker) PollResult {
	p = p.withDefaults()
	start := time.Now()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	consecutiveRetries := 0
	for {
		select {
		case <-ctx.Done():
			return PollResult{Outcome: PollAborted, Message: "cancelled"}
		case <-ticker.C:
		}

		if tracker.Idle() {
			return PollResult{Outcome: PollIdle}
		}

		status, err := src.Status(ctx, sessionID)
		if err != nil {
			logs.Warnf("poller: status query for %s failed: %v", sessionID, err)
		} else {
			switch s := status.(type) {
			case StatusIdle:
				return PollResult{Outcome: PollIdle}
			case StatusRetry:
				consecutiveRetries++
				logs.Infof("poller: session %s retrying (attempt %d): %s", sessionID, s.Attempt, s.Message)
				if consecutiveRetries >= p.RetryGrace {
					return PollResult{
						Outcome: PollFailed,
						Message: fmt.Sprintf("gave up after %d consecutive retries: %s", consecutiveRetries, s.Message),
					}
				}
			default:
				consecutiveRetries = 0
			}
		}

		elapsed := time.Since(start)
		if elapsed >= p.Timeout {
			return PollResult{
				Outcome: PollTimeout,
				Message: fmt.Sprintf("no completion after %s", elapsed.Round(time.Second)),
			}
		}
		if !tracker.SawActivity() && elapsed >= p.FirstActivity {
			return PollResult{
				Outcome: PollNoActivity,
				Message: fmt.Sprintf("no activity within %s of turn start", p.FirstActivity),
			}
		}
	}
}
