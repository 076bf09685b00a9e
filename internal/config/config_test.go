package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kreate/internal/logging"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, s *Settings)
	}{
		{
			name:  "defaults",
			setup: func() { viper.Reset() },
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, DefaultKonfig, s.Konfig)
				assert.Equal(t, DefaultOutputDir, s.OutputDir)
				assert.Equal(t, DefaultLogLevel, s.LogLevel)
				assert.Equal(t, DefaultLogFormat, s.LogFormat)
				assert.Equal(t, DefaultWatchDebounce, s.Watch.Debounce)
				assert.Contains(t, s.Watch.Ignore, ".git")
				assert.Empty(t, s.Overrides)
				assert.True(t, s.KeepSecrets)
			},
		},
		{
			name: "explicit values",
			setup: func() {
				viper.Reset()
				viper.Set(KeyKonfig, "deploy/app.konf")
				viper.Set(KeyOutputDir, "out/manifests")
				viper.Set(KeyLogLevel, "debug")
				viper.Set(KeyLogFormat, "json")
				viper.Set(KeyDummy, true)
				viper.Set(KeyOverrides, []string{"app.env=prd", "Deployment.main.replicas=3"})
				viper.Set(KeyWatchDebounce, "1s")
			},
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, "deploy/app.konf", s.Konfig)
				assert.Equal(t, "deploy", s.KonfigDir())
				assert.Equal(t, "out/manifests", s.OutputDir)
				assert.Equal(t, "debug", s.LogLevel)
				assert.True(t, s.Dummy)
				assert.Equal(t, []string{"app.env=prd", "Deployment.main.replicas=3"}, s.Overrides)
				assert.Equal(t, time.Second, s.Watch.Debounce)
				assert.False(t, s.KeepSecrets)
			},
		},
		{
			name: "unknown log level",
			setup: func() {
				viper.Reset()
				viper.Set(KeyLogLevel, "loud")
			},
			expectError: true,
		},
		{
			name: "unknown log format",
			setup: func() {
				viper.Reset()
				viper.Set(KeyLogFormat, "xml")
			},
			expectError: true,
		},
		{
			name: "output dir that would wipe the working directory",
			setup: func() {
				viper.Reset()
				viper.Set(KeyOutputDir, "./")
			},
			expectError: true,
		},
		{
			name: "malformed override",
			setup: func() {
				viper.Reset()
				viper.Set(KeyOverrides, []string{"replicas"})
			},
			expectError: true,
		},
		{
			name: "missing key file",
			setup: func() {
				viper.Reset()
				viper.Set(KeyKeyFile, "/nonexistent/kreate/key.txt")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			settings, err := Load()
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, settings)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, settings)
			tt.check(t, settings)
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	dir := t.TempDir()
	file := filepath.Join(dir, ".kreate.yml")
	require.NoError(t, os.WriteFile(file, []byte("konfig: from-file.konf\noutput_dir: from-file\n"), 0o644))

	t.Setenv("KREATE_OUTPUT_DIR", "from-env")

	viper.SetConfigFile(file)
	viper.SetEnvPrefix("KREATE")
	viper.AutomaticEnv()
	require.NoError(t, viper.ReadInConfig())

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file.konf", settings.Konfig)
	assert.Equal(t, "from-env", settings.OutputDir, "env overrides the settings file")
}

func TestSettingsLoggerConfig(t *testing.T) {
	s := &Settings{LogLevel: "warn", LogFormat: "json"}
	cfg, err := s.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	s.LogLevel = "nope"
	_, err = s.LoggerConfig()
	assert.Error(t, err)
}

func TestValidateOutputDir(t *testing.T) {
	tests := []struct {
		dir   string
		valid bool
	}{
		{"build", true},
		{"out/k8s", true},
		{"/tmp/kreate-out", true},
		{".", false},
		{"/", false},
		{"..", false},
		{"../elsewhere", false},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			err := validateOutputDir(tt.dir)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSettings_AddOverrides(t *testing.T) {
	s := &Settings{Overrides: []string{"app.env=prd"}}
	require.NoError(t, s.AddOverrides("app.env=acc", "val.replicas=2"))
	assert.Equal(t, []string{"app.env=prd", "app.env=acc", "val.replicas=2"}, s.Overrides)

	err := s.AddOverrides("=oops")
	assert.Error(t, err)
	assert.Len(t, s.Overrides, 3, "nothing is added on error")
}
