package stream

import "sync/atomic"

// Tracker is the only state shared between the event-stream processor and
// the completion poller. Both flags are single-writer (the processor) and
// single-reader (the poller); they only ever go from false to true.
type Tracker struct {
	firstEvent atomic.Bool
	idle       atomic.Bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// MarkActivity records that at least one meaningful event arrived for the
// tracked session. The poller uses this to detect a remote process that
// died before producing any output.
func (t *Tracker) MarkActivity() {
	t.firstEvent.Store(true)
}

func (t *Tracker) SawActivity() bool {
	return t.firstEvent.Load()
}

// MarkIdle lets the event stream short-circuit polling when the session
// reports idle before the next status poll lands.
func (t *Tracker) MarkIdle() {
	t.idle.Store(true)
}

func (t *Tracker) Idle() bool {
	return t.idle.Load()
}
