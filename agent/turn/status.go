package turn

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

type StatusKind string

const (
	KindIdle  StatusKind = "idle"
	KindBusy  StatusKind = "busy"
	KindRetry StatusKind = "retry"
)

// Status is the service's answer to "how is this turn doing". The retry
// variant means the service is retrying internally; the poller tolerates a
// bounded run of those before giving up.
type Status interface {
	Kind() StatusKind
}

type StatusIdle struct{}

func (StatusIdle) Kind() StatusKind { return KindIdle }

type StatusBusy struct{}

func (StatusBusy) Kind() StatusKind { return KindBusy }

type StatusRetry struct {
	Attempt int    `json:"attempt"`
	Message string `json:"message"`
}

func (StatusRetry) Kind() StatusKind { return KindRetry }

// DecodeStatus parses the wire form {"status": "...", ...}.
func DecodeStatus(data []byte) (Status, error) {
	var probe struct {
		Status StatusKind `json:"status"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "decode turn status")
	}
	switch probe.Status {
	case KindIdle:
		return StatusIdle{}, nil
	case KindBusy:
		return StatusBusy{}, nil
	case KindRetry:
		status := StatusRetry{}
		err := json.Unmarshal(data, &status)
		return status, err
	default:
		return nil, errors.Errorf("unknown turn status %q", probe.Status)
	}
}

// StatusSource answers status queries for a turn, keyed by session id.
type StatusSource interface {
	Status(ctx context.Context, sessionID string) (Status, error)
}
