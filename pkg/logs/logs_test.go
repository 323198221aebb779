package logs

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{"Info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, GetLevel(tt.in), "level %q", tt.in)
	}
}

func newBufferLogger(lv Level) (*ILog, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &ILog{level: lv, stdLog: log.New(buf, "", 0)}, buf
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	il, buf := newBufferLogger(LevelWarn)
	il.Debugf("hidden %d", 1)
	il.Infof("hidden too")
	il.Warnf("shown %s", "once")
	il.Error("also shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[WARN] shown once")
	require.Contains(t, out, "[ERROR] also shown")
}

func TestSetLevel(t *testing.T) {
	t.Parallel()

	il, buf := newBufferLogger(LevelError)
	il.Info("dropped")
	il.SetLevel(LevelTrace)
	il.Trace("kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "[TRACE] kept")
}

func TestSetOutput(t *testing.T) {
	t.Parallel()

	il, _ := newBufferLogger(LevelInfo)
	other := &bytes.Buffer{}
	il.SetOutput(other)
	il.Info("redirected")
	require.True(t, strings.Contains(other.String(), "redirected"))
}
