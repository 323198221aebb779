package logs

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// GetLevel maps a config string to a Level, defaulting to INFO.
func GetLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

var levelTags = []string{
	"[TRACE] ",
	"[DEBUG] ",
	"[INFO] ",
	"[WARN] ",
	"[ERROR] ",
	"[FATAL] ",
}

func (lv Level) tag() string {
	if lv >= LevelTrace && lv <= LevelFatal {
		return levelTags[lv]
	}
	return fmt.Sprintf("[?%d] ", lv)
}

type Logger interface {
	Trace(v ...interface{})
	Debug(v ...interface{})
	Info(v ...interface{})
	Warn(v ...interface{})
	Error(v ...interface{})
	Fatal(v ...interface{})
}

type FormatLogger interface {
	Tracef(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

type Control interface {
	SetLevel(Level)
	SetOutput(io.Writer)
}

type FullLogger interface {
	Logger
	FormatLogger
	Control
}

// ILog is the default FullLogger backed by the standard library logger.
type ILog struct {
	stdLog *log.Logger
	level  Level
}

func (il *ILog) SetOutput(w io.Writer) {
	il.stdLog.SetOutput(w)
}

func (il *ILog) SetLevel(lv Level) {
	il.level = lv
}

func (il *ILog) logf(lv Level, format *string, v ...interface{}) {
	if il.level > lv {
		return
	}
	msg := lv.tag()
	if format != nil {
		msg += fmt.Sprintf(*format, v...)
	} else {
		msg += fmt.Sprint(v...)
	}
	il.stdLog.Output(4, msg)
	if lv == LevelFatal {
		os.Exit(1)
	}
}

func (il *ILog) Fatal(v ...interface{}) { il.logf(LevelFatal, nil, v...) }
func (il *ILog) Error(v ...interface{}) { il.logf(LevelError, nil, v...) }
func (il *ILog) Warn(v ...interface{})  { il.logf(LevelWarn, nil, v...) }
func (il *ILog) Info(v ...interface{})  { il.logf(LevelInfo, nil, v...) }
func (il *ILog) Debug(v ...interface{}) { il.logf(LevelDebug, nil, v...) }
func (il *ILog) Trace(v ...interface{}) { il.logf(LevelTrace, nil, v...) }

func (il *ILog) Fatalf(format string, v ...interface{}) { il.logf(LevelFatal, &format, v...) }
func (il *ILog) Errorf(format string, v ...interface{}) { il.logf(LevelError, &format, v...) }
func (il *ILog) Warnf(format string, v ...interface{})  { il.logf(LevelWarn, &format, v...) }
func (il *ILog) Infof(format string, v ...interface{})  { il.logf(LevelInfo, &format, v...) }
func (il *ILog) Debugf(format string, v ...interface{}) { il.logf(LevelDebug, &format, v...) }
func (il *ILog) Tracef(format string, v ...interface{}) { il.logf(LevelTrace, &format, v...) }
