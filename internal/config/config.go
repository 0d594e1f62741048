// Package config loads stepwise settings from built-in defaults, an
// optional YAML file, STEPWISE_* environment variables and CLI flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/internal/tracing"
)

const (
	// AppName is the config file base name and the home config directory.
	AppName = "stepwise"
	// EnvPrefix prefixes environment overrides, e.g. STEPWISE_LOG_LEVEL.
	EnvPrefix = "STEPWISE"
)

// Config is the complete runtime configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Engine  EngineConfig  `mapstructure:"engine"`
	FS      FSConfig      `mapstructure:"fs"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Emit    EmitConfig    `mapstructure:"emit"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" default:"text" validate:"oneof=text json"`
}

type EngineConfig struct {
	Language  string `mapstructure:"language" default:"expr" validate:"oneof=expr cel jq lua"`
	MaxVisits int    `mapstructure:"max_visits" default:"1000" validate:"gte=1"`
}

// FSConfig is the path policy of the file commands. AllowedPaths are
// writable; an empty policy allows everything.
type FSConfig struct {
	AllowedPaths  []string `mapstructure:"allowed_paths"`
	DeniedPaths   []string `mapstructure:"denied_paths"`
	ReadOnlyPaths []string `mapstructure:"read_only_paths"`
	MaxReadSize   int64    `mapstructure:"max_read_size" default:"10485760" validate:"gte=1"`
}

type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	RetryCount      int           `mapstructure:"retry_count" default:"0" validate:"gte=0,lte=10"`
	MaxResponseBody int64         `mapstructure:"max_response_body" default:"10485760" validate:"gte=1"`
}

// EmitConfig selects event sinks. Stdout writes JSON lines.
type EmitConfig struct {
	Stdout      bool   `mapstructure:"stdout" default:"true"`
	StorePath   string `mapstructure:"store_path"`
	RedisAddr   string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisStream string `mapstructure:"redis_stream" default:"stepwise:events" validate:"required"`
	RedisMaxLen int64  `mapstructure:"redis_max_len" default:"10000" validate:"gte=0"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter" default:"stdout" validate:"oneof=stdout none"`
	SampleRate float64 `mapstructure:"sample_rate" default:"1" validate:"gte=0,lte=1"`
}

// FlagKeys maps CLI flag names to config keys. Load binds the flags of
// this table that exist in the given flag set.
var FlagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"language":     "engine.language",
	"max-visits":   "engine.max_visits",
	"store":        "emit.store_path",
	"redis":        "emit.redis_addr",
	"redis-stream": "emit.redis_stream",
	"metrics-addr": "metrics.addr",
	"trace":        "tracing.enabled",
}

var validate = validator.New()

// Default returns the built-in configuration.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply default values: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration. path names an explicit config file; when
// empty, stepwise.yaml is searched in the working directory and in
// $HOME/.stepwise, and a missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	registerDefaults(v, "", reflect.ValueOf(cfg).Elem())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+AppName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults declares every leaf key to viper so that environment
// variables are honored by Unmarshal even when no file sets the key.
func registerDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			registerDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Commands converts the fs and http sections into built-in command
// settings.
func (c *Config) Commands() (commands.FSConfig, commands.HTTPConfig) {
	return commands.FSConfig{
			Policy: commands.PathPolicy{
				ReadOnlyPaths: c.FS.ReadOnlyPaths,
				WritablePaths: c.FS.AllowedPaths,
				DeniedPaths:   c.FS.DeniedPaths,
			},
			MaxReadSize: c.FS.MaxReadSize,
		}, commands.HTTPConfig{
			Timeout:         c.HTTP.Timeout,
			RetryCount:      c.HTTP.RetryCount,
			MaxResponseBody: c.HTTP.MaxResponseBody,
		}
}

// TracingConfig converts the tracing section. A disabled section yields
// the no-op exporter.
func (c *Config) TracingConfig(version string) tracing.Config {
	exporter := c.Tracing.Exporter
	if !c.Tracing.Enabled {
		exporter = tracing.ExporterNone
	}
	return tracing.Config{
		Exporter:       exporter,
		ServiceName:    AppName,
		ServiceVersion: version,
		SampleRate:     c.Tracing.SampleRate,
	}
}
