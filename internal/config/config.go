// Package config loads dashboard settings from defaults, an optional
// valter.yaml, VALTER_* environment variables and command-line overrides, in
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeDev  = "dev"
	ModeProd = "prod"

	DevBaseURL  = "http://localhost:8000"
	ProdBaseURL = "http://localhost:9090"

	EnvPrefix = "VALTER"
	FileName  = "valter"
)

type Settings struct {
	APIURL           string        `mapstructure:"api_url"`
	Mode             string        `mapstructure:"mode"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	CloudsWritable   bool          `mapstructure:"clouds_writable"`
	IgnoreMissingEnv bool          `mapstructure:"ignore_missing_env"`
	RequiredEnv      []string      `mapstructure:"required_env"`
	LogFile          string        `mapstructure:"log_file"`
	Theme            string        `mapstructure:"theme"`

	// Source is the config file that was read, if any.
	Source string `mapstructure:"-"`
}

// BaseURL picks the backend root: an explicit api_url wins, otherwise the
// mode's default endpoint.
func (s Settings) BaseURL() string {
	if u := strings.TrimSpace(s.APIURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	if s.Mode == ModeProd {
		return ProdBaseURL
	}
	return DevBaseURL
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "")
	v.SetDefault("mode", ModeDev)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("settle_delay", 1500*time.Millisecond)
	v.SetDefault("clouds_writable", false)
	v.SetDefault("ignore_missing_env", false)
	v.SetDefault("required_env", []string{})
	v.SetDefault("log_file", "")
	v.SetDefault("theme", "auto")
}

type InvalidSettingError struct {
	Key    string
	Value  string
	Reason string
}

func (e InvalidSettingError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Key, e.Value, e.Reason)
}

// Load reads settings. dir is searched for valter.yaml; a missing file is
// not an error. overrides are applied last (typically changed CLI flags).
func Load(dir string, overrides map[string]any) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return Settings{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	s.Source = v.ConfigFileUsed()
	s.RequiredEnv = splitList(s.RequiredEnv)
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	return s, s.validate()
}

// splitList accepts both a YAML list and a comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (s Settings) validate() error {
	switch s.Mode {
	case ModeDev, ModeProd:
	default:
		return InvalidSettingError{Key: "mode", Value: s.Mode, Reason: "want dev or prod"}
	}
	if s.PollInterval <= 0 {
		return InvalidSettingError{Key: "poll_interval", Value: s.PollInterval.String(), Reason: "must be positive"}
	}
	if s.RequestTimeout <= 0 {
		return InvalidSettingError{Key: "request_timeout", Value: s.RequestTimeout.String(), Reason: "must be positive"}
	}
	return nil
}
