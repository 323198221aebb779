package records

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type PartType string

const (
	TextType       PartType = "text"
	ToolType       PartType = "tool"
	ReasoningType  PartType = "reasoning"
	StepFinishType PartType = "step-finish"
)

// PartPayload is the content of a Part. Exactly one concrete type applies
// per part; the JSON representation carries a "type" tag next to the
// envelope fields.
type PartPayload interface {
	partType() PartType
}

// PartSpan carries start/end unix-millisecond timestamps. A zero End means
// the part is still in flight.
type PartSpan struct {
	Start int64 `json:"start"`
	End   int64 `json:"end,omitempty"`
}

// TextPart is plain assistant or user text. Synthetic parts were written by
// this core (summary writeback) rather than by the model; Ignored parts are
// excluded from prompt reconstruction by the service.
type TextPart struct {
	Text      string    `json:"text"`
	Synthetic bool      `json:"synthetic,omitempty"`
	Ignored   bool      `json:"ignored,omitempty"`
	Time      *PartSpan `json:"time,omitempty"`
}

func (TextPart) partType() PartType { return TextType }

// Done reports whether the text part has stopped updating.
func (p TextPart) Done() bool {
	return p.Time != nil && p.Time.End != 0
}

// ToolPart is one tool invocation. Its State moves pending → running →
// completed|error and is itself a discriminated union.
type ToolPart struct {
	Tool   string    `json:"tool"`
	CallID string    `json:"callID"`
	State  ToolState `json:"-"`
}

func (ToolPart) partType() PartType { return ToolType }

type toolPartWire struct {
	Tool   string          `json:"tool"`
	CallID string          `json:"callID"`
	State  json.RawMessage `json:"state"`
}

func (p ToolPart) MarshalJSON() ([]byte, error) {
	state, err := marshalToolState(p.State)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toolPartWire{Tool: p.Tool, CallID: p.CallID, State: state})
}

func (p *ToolPart) UnmarshalJSON(data []byte) error {
	var wire toolPartWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	state, err := unmarshalToolState(wire.State)
	if err != nil {
		return err
	}
	p.Tool = wire.Tool
	p.CallID = wire.CallID
	p.State = state
	return nil
}

// ReasoningPart is a chunk of model reasoning.
type ReasoningPart struct {
	Text string    `json:"text"`
	Time *PartSpan `json:"time,omitempty"`
}

func (ReasoningPart) partType() PartType { return ReasoningType }

// StepFinishPart closes one reasoning step with its token/cost totals.
type StepFinishPart struct {
	Tokens TokenUsage `json:"tokens"`
	Cost   float64    `json:"cost"`
}

func (StepFinishPart) partType() PartType { return StepFinishType }

// UnknownPart preserves part kinds this core does not model so that records
// survive a read-modify-write cycle against a newer service.
type UnknownPart struct {
	Type PartType        `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (p UnknownPart) partType() PartType { return p.Type }

// ToolStatus names the states of a tool invocation.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolState is the per-status payload of a ToolPart.
type ToolState interface {
	Status() ToolStatus
}

type ToolStatePending struct{}

func (ToolStatePending) Status() ToolStatus { return ToolPending }

type ToolStateRunning struct {
	Input map[string]any `json:"input,omitempty"`
	Title string         `json:"title,omitempty"`
}

func (ToolStateRunning) Status() ToolStatus { return ToolRunning }

type ToolStateCompleted struct {
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     PartSpan       `json:"time"`
}

func (ToolStateCompleted) Status() ToolStatus { return ToolCompleted }

type ToolStateError struct {
	Input map[string]any `json:"input,omitempty"`
	Error string         `json:"error"`
}

func (ToolStateError) Status() ToolStatus { return ToolError }

func marshalToolState(state ToolState) (json.RawMessage, error) {
	if state == nil {
		state = ToolStatePending{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	// Inject the status tag next to the per-state fields.
	tagged := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(state.Status())
	tagged["status"] = tag
	return json.Marshal(tagged)
}

func unmarshalToolState(data json.RawMessage) (ToolState, error) {
	if len(data) == 0 {
		return ToolStatePending{}, nil
	}
	var probe struct {
		Status ToolStatus `json:"status"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Status {
	case ToolPending, "":
		return ToolStatePending{}, nil
	case ToolRunning:
		state := ToolStateRunning{}
		err := json.Unmarshal(data, &state)
		return state, err
	case ToolCompleted:
		state := ToolStateCompleted{}
		err := json.Unmarshal(data, &state)
		return state, err
	case ToolError:
		state := ToolStateError{}
		err := json.Unmarshal(data, &state)
		return state, err
	default:
		return nil, errors.Errorf("unknown tool state: %s", probe.Status)
	}
}

// Part is one content fragment of a message.
type Part struct {
	ID        string      `json:"id"`
	MessageID string      `json:"messageID"`
	SessionID string      `json:"sessionID"`
	Payload   PartPayload `json:"-"`
}

// Type returns the discriminator of the payload.
func (p Part) Type() PartType {
	if p.Payload == nil {
		return ""
	}
	return p.Payload.partType()
}

type partEnvelope struct {
	ID        string          `json:"id"`
	MessageID string          `json:"messageID"`
	SessionID string          `json:"sessionID"`
	Type      PartType        `json:"type"`
	Data      json.RawMessage `json:"data"`
}

func (p Part) MarshalJSON() ([]byte, error) {
	env := partEnvelope{
		ID:        p.ID,
		MessageID: p.MessageID,
		SessionID: p.SessionID,
		Type:      p.Type(),
	}
	switch payload := p.Payload.(type) {
	case nil:
		return nil, errors.New("part has no payload")
	case UnknownPart:
		env.Data = payload.Raw
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var env partEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := unmarshalPartPayload(env.Type, env.Data)
	if err != nil {
		return err
	}
	p.ID = env.ID
	p.MessageID = env.MessageID
	p.SessionID = env.SessionID
	p.Payload = payload
	return nil
}

func unmarshalPartPayload(typ PartType, data json.RawMessage) (PartPayload, error) {
	switch typ {
	case TextType:
		payload := TextPart{}
		err := json.Unmarshal(data, &payload)
		return payload, err
	case ToolType:
		payload := ToolPart{}
		err := json.Unmarshal(data, &payload)
		return payload, err
	case ReasoningType:
		payload := ReasoningPart{}
		err := json.Unmarshal(data, &payload)
		return payload, err
	case StepFinishType:
		payload := StepFinishPart{}
		err := json.Unmarshal(data, &payload)
		return payload, err
	case "":
		return nil, errors.New("part is missing a type tag")
	default:
		return UnknownPart{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
