package logs

import (
	"io"
	"log"
	"os"
)

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Output string `json:"output" mapstructure:"output"`
}

// InitLogger applies a LogConfig to the package default logger.
func InitLogger(cfg LogConfig) {
	SetLevel(GetLevel(cfg.Level))
	switch cfg.Output {
	case "stdout":
		SetOutput(os.Stdout)
	default:
		SetOutput(os.Stderr)
	}
}

var logger FullLogger = &ILog{
	level:  LevelInfo,
	stdLog: log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile|log.Lmicroseconds),
}

// SetOutput sets the output of the default logger. By default it is stderr.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevel sets the level below which logs are discarded.
func SetLevel(lv Level) {
	logger.SetLevel(lv)
}

// DefaultLogger returns the package default logger.
func DefaultLogger() FullLogger {
	return logger
}

// SetLogger replaces the default logger. Not concurrent-safe; call it
// before any logging.
func SetLogger(v FullLogger) {
	logger = v
}

func Fatal(v ...interface{}) { logger.Fatal(v...) }
func Error(v ...interface{}) { logger.Error(v...) }
func Warn(v ...interface{})  { logger.Warn(v...) }
func Info(v ...interface{})  { logger.Info(v...) }
func Debug(v ...interface{}) { logger.Debug(v...) }
func Trace(v ...interface{}) { logger.Trace(v...) }

func Fatalf(format string, v ...interface{}) { logger.Fatalf(format, v...) }
func Errorf(format string, v ...interface{}) { logger.Errorf(format, v...) }
func Warnf(format string, v ...interface{})  { logger.Warnf(format, v...) }
func Infof(format string, v ...interface{})  { logger.Infof(format, v...) }
func Debugf(format string, v ...interface{}) { logger.Debugf(format, v...) }
func Tracef(format string, v ...interface{}) { logger.Tracef(format, v...) }
