package turn

import (
	"net"

	"github.com/pkg/errors"

	"github.com/hatcher/pilot/agent/stream"
)

var (
	ErrTimeout     = errors.New("turn: overall timeout exceeded")
	ErrEmptyPrompt = errors.New("turn: prompt is empty")
	ErrNoSession   = errors.New("turn: service returned no session id")
)

// isTransient decides whether a transport-level failure is worth a
// continuation-prompt retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return stream.ClassifyErr(err) == stream.ErrTransient
}
