package stream

import (
	"fmt"
	"strings"
)

// ErrorKind buckets a turn failure for the retry policy: transient errors
// are retried with a continuation prompt, agent-config errors abort the
// turn, generic errors abort the attempt.
type ErrorKind int

const (
	ErrGeneric ErrorKind = iota
	ErrTransient
	ErrAgentConfig
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrAgentConfig:
		return "agent-config"
	default:
		return "generic"
	}
}

// TerminalError is the classified form of a session-error event.
type TerminalError struct {
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *TerminalError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Message
}

var transientMarkers = []string{
	"fetch failed",
	"econnrefused",
	"econnreset",
	"etimedout",
	"socket hang up",
	"network",
	"connection refused",
	"connection reset",
	"broken pipe",
	"upstream",
	"terminated",
	"timeout awaiting",
}

var agentConfigMarkers = []string{
	"agent not found",
	"unknown agent",
	"model not found",
	"unknown model",
	"no such agent",
	"invalid model",
}

// Classify maps an error name/message pair from the service onto an
// ErrorKind. Matching is substring-based: the service reports upstream
// failures with provider-specific names but stable message fragments.
func Classify(name, message string) ErrorKind {
	probe := strings.ToLower(name + " " + message)
	for _, marker := range agentConfigMarkers {
		if strings.Contains(probe, marker) {
			return ErrAgentConfig
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(probe, marker) {
			return ErrTransient
		}
	}
	return ErrGeneric
}

// ClassifyErr classifies an ordinary error value (transport failures from
// prompt sends or polls).
func ClassifyErr(err error) ErrorKind {
	if err == nil {
		return ErrGeneric
	}
	return Classify("", err.Error())
}
