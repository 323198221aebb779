// Package stream consumes the asynchronous progress-event feed of one turn
// and reduces it to the turn's outcome: token/cost totals, artifacts created
// by tools, and a classified terminal error when the session fails.
package stream

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hatcher/pilot/agent/records"
)

type EventType string

const (
	EventPartUpdated    EventType = "part-updated"
	EventMessageUpdated EventType = "message-updated"
	EventSessionError   EventType = "session-error"
	EventSessionIdle    EventType = "session-idle"
)

// ProgressEvent is one structured update from the agent service. Events
// carry the session they belong to; the processor drops events for sessions
// other than the one it tracks.
type ProgressEvent interface {
	Type() EventType
	Session() string
}

type PartUpdated struct {
	Part records.Part `json:"part"`
}

func (PartUpdated) Type() EventType   { return EventPartUpdated }
func (e PartUpdated) Session() string { return e.Part.SessionID }

type MessageUpdated struct {
	Info records.Message `json:"info"`
}

func (MessageUpdated) Type() EventType   { return EventMessageUpdated }
func (e MessageUpdated) Session() string { return e.Info.SessionID }

// ErrorInfo is the service's wire representation of a session error.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type SessionError struct {
	SessionID string    `json:"sessionID"`
	Error     ErrorInfo `json:"error"`
}

func (SessionError) Type() EventType   { return EventSessionError }
func (e SessionError) Session() string { return e.SessionID }

type SessionIdle struct {
	SessionID string `json:"sessionID"`
}

func (SessionIdle) Type() EventType   { return EventSessionIdle }
func (e SessionIdle) Session() string { return e.SessionID }

type eventEnvelope struct {
	Type       EventType       `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// DecodeEvent parses one wire frame into its concrete event. Unknown event
// types return (nil, nil): the service is free to add kinds this core does
// not consume.
func DecodeEvent(data []byte) (ProgressEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode progress event")
	}
	switch env.Type {
	case EventPartUpdated:
		ev := PartUpdated{}
		err := json.Unmarshal(env.Properties, &ev)
		return ev, err
	case EventMessageUpdated:
		ev := MessageUpdated{}
		err := json.Unmarshal(env.Properties, &ev)
		return ev, err
	case EventSessionError:
		ev := SessionError{}
		err := json.Unmarshal(env.Properties, &ev)
		return ev, err
	case EventSessionIdle:
		ev := SessionIdle{}
		err := json.Unmarshal(env.Properties, &ev)
		return ev, err
	default:
		return nil, nil
	}
}
