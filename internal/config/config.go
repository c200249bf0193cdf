// Package config loads the runtime configuration of dsrun.
//
// Values come, lowest precedence first, from built-in defaults, a
// .dataspace.yaml file, DATASPACE_* environment variables and command-line
// flags bound with BindPFlag.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. DATASPACE_FUEL.
	EnvPrefix = "DATASPACE"

	// FileName is the config file name without extension.
	FileName = ".dataspace"
)

// Config holds all runtime configuration for a dsrun session.
type Config struct {
	Fuel     int    `mapstructure:"fuel"`
	LogLevel string `mapstructure:"log_level"`
	TraceDB  string `mapstructure:"trace_db"`
	Format   string `mapstructure:"format"`
	WatchDir string `mapstructure:"watch_dir"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Fuel:     1000,
		LogLevel: "info",
		Format:   "text",
	}
}

// New returns a viper instance with defaults, config file search paths and
// environment binding set up. An explicit file overrides the search.
func New(file string) *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("fuel", d.Fuel)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("trace_db", d.TraceDB)
	v.SetDefault("format", d.Format)
	v.SetDefault("watch_dir", d.WatchDir)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and unmarshals v into a validated
// Config. A missing config file found by search is not an error; a missing
// explicit file is.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Fuel < 1 {
		return fmt.Errorf("config: fuel must be positive, got %d", c.Fuel)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: format must be text or json, got %q", c.Format)
	}
	return nil
}

// SlogLevel returns the configured log level. Invalid levels were rejected
// by Validate, so it falls back to info.
func (c Config) SlogLevel() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}
