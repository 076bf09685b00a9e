package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/kreate/internal/config"
)

var (
	cfgFile string
	// overrides collects --set flags. They bypass viper, which would split
	// values on commas.
	overrides []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kreate",
	Short: "Create kubernetes manifests from a layered konfig",
	Long: `Kreate renders kubernetes manifests from a konfig: a layered YAML
configuration that declares komponents, their patches and their values.

Key Features:
  • Layered konfig with includes, value and secret files
  • Templates from local dirs, zip archives and remote repos
  • Patches bound to their targets after all komponents exist
  • age encrypted secrets
  • Kustomization generated from the komponents

Quick Start:
  kreate build                    Render the konfig into the output dir
  kreate view app                 Show part of the merged konfig
  kreate list                     List all komponents
  kreate watch                    Rebuild on every konfig change`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "settings file (default is .kreate.yml, can also use KREATE_CONFIG_FILE env var)")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFormat, "log format (text, json)")
	flags.StringP("konfig", "k", config.DefaultKonfig, "main konfig file")
	flags.String("output-dir", config.DefaultOutputDir, "directory the manifests are written to")
	flags.String("cache-dir", "", "repo cache directory")
	flags.String("key-file", "", "age identity file used to dekrypt secrets")
	flags.Bool("dummy", false, "replace dekrypted secrets with placeholders")
	flags.StringArrayVar(&overrides, "set", nil, "override a konfig value, as path=yaml (repeatable)")

	bindFlags(flags, map[string]string{
		"log-level":  config.KeyLogLevel,
		"log-format": config.KeyLogFormat,
		"konfig":     config.KeyKonfig,
		"output-dir": config.KeyOutputDir,
		"cache-dir":  config.KeyCacheDir,
		"key-file":   config.KeyKeyFile,
		"dummy":      config.KeyDummy,
	})

	AddPersistentFlagValidation(rootCmd, "log-format", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified settings file path
//  2. KREATE_CONFIG_FILE environment variable: Custom settings file path
//  3. Default: .kreate.yml in current directory
//
// Environment variables with the KREATE_ prefix override the file, with
// dots in keys replaced by underscores (KREATE_WATCH_DEBOUNCE=1s).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("KREATE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kreate")
	}

	viper.SetEnvPrefix("KREATE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or unreadable settings file leaves flags, env and defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
