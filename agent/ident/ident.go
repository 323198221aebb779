// Package ident generates record identifiers compatible with the agent
// service's own scheme: a type prefix, a hex-encoded millisecond timestamp,
// and a random suffix. Ids with the same prefix sort lexicographically by
// creation time, which lets stores return records in rough insertion order
// without a secondary index.
package ident

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SessionPrefix = "ses"
	MessagePrefix = "msg"
	PartPrefix    = "prt"

	timestampDigits = 12
	suffixDigits    = 10
)

// New builds an id of the form <prefix>_<unix-ms hex><random hex>.
func New(prefix string) string {
	return NewAt(prefix, time.Now())
}

// NewAt builds an id with an explicit creation time. Used by tests and by
// backfill paths that must preserve historical ordering.
func NewAt(prefix string, t time.Time) string {
	ts := fmt.Sprintf("%0*x", timestampDigits, t.UnixMilli())
	u := uuid.New()
	suffix := hex.EncodeToString(u[:])[:suffixDigits]
	return prefix + "_" + ts + suffix
}

func NewSessionID() string { return New(SessionPrefix) }
func NewMessageID() string { return New(MessagePrefix) }
func NewPartID() string    { return New(PartPrefix) }

// Timestamp recovers the creation time embedded in an id. The zero time and
// false are returned when the id does not carry a parseable timestamp.
func Timestamp(id string) (time.Time, bool) {
	_, rest, ok := strings.Cut(id, "_")
	if !ok || len(rest) < timestampDigits {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(rest[:timestampDigits], 16, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
