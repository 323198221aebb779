// Package config loads and mutates the pilot configuration file. Loading
// goes through viper so values can come from the file or from PILOT_*
// environment variables; in-place edits go through sjson so the file keeps
// its formatting and unknown keys.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/tidwall/sjson"

	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/agent/retention"
	"github.com/hatcher/pilot/agent/turn"
	"github.com/hatcher/pilot/pkg/httpx"
	"github.com/hatcher/pilot/pkg/logs"
)

type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// BackendConfig selects and parameterizes the record store.
type BackendConfig struct {
	Kind BackendKind `mapstructure:"kind" json:"kind"`
	// RootPath is the local record tree root (local backend only).
	RootPath string `mapstructure:"rootPath" json:"rootPath,omitempty"`
	// BaseURL and Token address the remote service (remote backend only).
	BaseURL string `mapstructure:"baseURL" json:"baseURL,omitempty"`
	Token   string `mapstructure:"token" json:"token,omitempty"`
	// Directory is the working directory whose project scopes listings.
	Directory string `mapstructure:"directory" json:"directory"`
}

type RetentionConfig struct {
	MaxSessions int `mapstructure:"maxSessions" json:"maxSessions"`
	MaxAgeDays  int `mapstructure:"maxAgeDays" json:"maxAgeDays"`
}

type TurnConfig struct {
	MaxAttempts    int           `mapstructure:"maxAttempts" json:"maxAttempts"`
	RetryBackoff   time.Duration `mapstructure:"retryBackoff" json:"retryBackoff"`
	OverallTimeout time.Duration `mapstructure:"overallTimeout" json:"overallTimeout"`
	PollInterval   time.Duration `mapstructure:"pollInterval" json:"pollInterval"`
	PollTimeout    time.Duration `mapstructure:"pollTimeout" json:"pollTimeout"`
	FirstActivity  time.Duration `mapstructure:"firstActivity" json:"firstActivity"`
	RetryGrace     int           `mapstructure:"retryGrace" json:"retryGrace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Output string `mapstructure:"output" json:"output,omitempty"`
}

type Config struct {
	Backend   BackendConfig   `mapstructure:"backend" json:"backend"`
	Retention RetentionConfig `mapstructure:"retention" json:"retention"`
	Turn      TurnConfig      `mapstructure:"turn" json:"turn"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// Load reads the named config file from dir. A missing file is not an
// error: every field has a working default, and PILOT_* environment
// variables still apply.
func Load(dir, name string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(dir)
	v.SetConfigType("json")
	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend.kind", string(BackendLocal))
	v.SetDefault("retention.maxSessions", retention.DefaultMaxSessions)
	v.SetDefault("retention.maxAgeDays", retention.DefaultMaxAgeDays)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.WithMessagef(err, "read config %s in %s", name, dir)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WithMessagef(err, "parse config %s in %s", name, dir)
	}
	return cfg, nil
}

// NewBackend builds the record store the config names.
func NewBackend(bc BackendConfig) (records.Backend, error) {
	switch bc.Kind {
	case BackendLocal, "":
		if bc.RootPath == "" {
			return nil, errors.New("config: local backend needs rootPath")
		}
		return records.NewLocalBackend(bc.RootPath), nil
	case BackendRemote:
		if bc.BaseURL == "" {
			return nil, errors.New("config: remote backend needs baseURL")
		}
		return records.NewRemoteBackend(httpx.NewDefaultClient(bc.BaseURL), bc.Token), nil
	default:
		return nil, errors.Errorf("config: unknown backend kind %q", bc.Kind)
	}
}

// Policy converts the retention section to an engine policy. Zero fields
// fall through to the engine defaults.
func (c RetentionConfig) Policy() retention.Policy {
	return retention.Policy{
		MaxSessions: c.MaxSessions,
		MaxAgeDays:  c.MaxAgeDays,
	}
}

// TurnOptions converts the turn section to orchestrator config. Zero
// fields fall through to the orchestrator defaults.
func (c TurnConfig) TurnOptions() turn.Config {
	return turn.Config{
		MaxAttempts:    c.MaxAttempts,
		RetryBackoff:   c.RetryBackoff,
		OverallTimeout: c.OverallTimeout,
		Poller: turn.Poller{
			Interval:      c.PollInterval,
			Timeout:       c.PollTimeout,
			FirstActivity: c.FirstActivity,
			RetryGrace:    c.RetryGrace,
		},
	}
}

// LoggerOptions converts the log section for logs.InitLogger.
func (c LogConfig) LoggerOptions() logs.LogConfig {
	return logs.LogConfig{Level: c.Level, Output: c.Output}
}

// Set writes one dotted-path key into the config file in place, creating
// the file when absent. Formatting and keys outside the path are preserved.
func Set(path, key string, value any) error {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.WithMessagef(err, "read config %s", path)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	updated, err := sjson.SetBytes(raw, key, value)
	if err != nil {
		return errors.WithMessagef(err, "set config key %s", key)
	}
	return errors.WithMessagef(os.WriteFile(path, updated, 0o600), "write config %s", path)
}

// Unset removes one dotted-path key from the config file. Removing a key
// that does not exist is a no-op.
func Unset(path, key string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithMessagef(err, "read config %s", path)
	}
	updated, err := sjson.DeleteBytes(raw, key)
	if err != nil {
		return errors.WithMessagef(err, "unset config key %s", key)
	}
	return errors.WithMessagef(os.WriteFile(path, updated, 0o600), "write config %s", path)
}
