// Package config provides the runtime settings of kreate using Viper for
// loading from a settings file, environment variables and command-line
// flags.
//
// Settings are distinct from the konfig: they only say where the konfig
// lives and how a run behaves (output directory, repo cache, logging,
// decryption key). Precedence is flags, then KREATE_ environment
// variables, then .kreate.yml, then defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/kreate/internal/logging"
)

// Setting keys, shared by viper bindings and the settings file.
const (
	KeyKonfig        = "konfig"
	KeyOutputDir     = "output_dir"
	KeyCacheDir      = "cache_dir"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
	KeyKeyFile       = "key_file"
	KeyDummy         = "dummy"
	KeyOverrides     = "set"
	KeyKeepSecrets   = "keep_secrets"
	KeyWatchDebounce = "watch.debounce"
	KeyWatchIgnore   = "watch.ignore"
)

// Defaults.
const (
	DefaultKonfig        = "kreate.yaml"
	DefaultOutputDir     = "build"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultWatchDebounce = 300 * time.Millisecond
)

type Settings struct {
	Konfig      string        `mapstructure:"konfig" yaml:"konfig"`
	OutputDir   string        `mapstructure:"output_dir" yaml:"output_dir"`
	CacheDir    string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	LogLevel    string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string        `mapstructure:"log_format" yaml:"log_format"`
	KeyFile     string        `mapstructure:"key_file" yaml:"key_file"`
	Dummy       bool          `mapstructure:"dummy" yaml:"dummy"`
	Overrides   []string      `mapstructure:"set" yaml:"set"`
	KeepSecrets bool          `mapstructure:"keep_secrets" yaml:"keep_secrets"`
	Watch       WatchSettings `mapstructure:"watch" yaml:"watch"`
}

type WatchSettings struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore"`
}

// Load reads the settings from viper, applies defaults and validates them.
func Load() (*Settings, error) {
	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Slices set through flags or env arrive as strings; viper resolves them.
	if viper.IsSet(KeyOverrides) {
		settings.Overrides = viper.GetStringSlice(KeyOverrides)
	}
	if viper.IsSet(KeyWatchIgnore) {
		settings.Watch.Ignore = viper.GetStringSlice(KeyWatchIgnore)
	}

	if settings.Konfig == "" {
		settings.Konfig = DefaultKonfig
	}
	if settings.OutputDir == "" {
		settings.OutputDir = DefaultOutputDir
	}
	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}
	if settings.LogFormat == "" {
		settings.LogFormat = DefaultLogFormat
	}
	if settings.Watch.Debounce == 0 {
		settings.Watch.Debounce = DefaultWatchDebounce
	}
	if len(settings.Watch.Ignore) == 0 {
		settings.Watch.Ignore = []string{".git", "*.swp", "*~"}
	}
	if !viper.IsSet(KeyKeepSecrets) {
		settings.KeepSecrets = true
	}

	if err := validateSettings(&settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &settings, nil
}

// AddOverrides appends konfig overrides given outside viper, such as
// repeated --set flags. Later overrides win.
func (s *Settings) AddOverrides(overrides ...string) error {
	for _, o := range overrides {
		if err := validateOverride(o); err != nil {
			return err
		}
	}
	s.Overrides = append(s.Overrides, overrides...)
	return nil
}

// LoggerConfig returns the logger configuration the settings describe.
func (s *Settings) LoggerConfig() (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = s.LogFormat
	return cfg, nil
}

// KonfigDir returns the directory holding the main konfig.
func (s *Settings) KonfigDir() string {
	return filepath.Dir(s.Konfig)
}

func validateSettings(s *Settings) error {
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q must be text or json", s.LogFormat)
	}

	if err := validateOutputDir(s.OutputDir); err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}

	for _, o := range s.Overrides {
		if err := validateOverride(o); err != nil {
			return err
		}
	}

	if s.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	if s.KeyFile != "" {
		if _, err := os.Stat(s.KeyFile); err != nil {
			return fmt.Errorf("key_file: %w", err)
		}
	}
	return nil
}

func validateOverride(o string) error {
	if path, _, ok := strings.Cut(o, "="); !ok || path == "" {
		return fmt.Errorf("override %q must have the form path=value", o)
	}
	return nil
}

// validateOutputDir rejects directories that are unsafe to wipe.
func validateOutputDir(dir string) error {
	clean := filepath.Clean(dir)
	switch clean {
	case ".", "/", "..":
		return fmt.Errorf("refusing to use %q, it is wiped on every build", dir)
	}
	if home, err := os.UserHomeDir(); err == nil && clean == filepath.Clean(home) {
		return fmt.Errorf("refusing to use the home directory")
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes the working directory: %s", dir)
	}
	return nil
}
