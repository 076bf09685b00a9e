package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Build flags
	KeepSecrets bool `flag:"keep-secrets" desc:"Keep secret manifests after the build" default:"true"`

	// Output flags
	Format string `flag:"format,f" desc:"Output format" default:"table"`
	Quiet  bool   `flag:"quiet,q" desc:"Suppress progress output" default:"false"`
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "build":
			addBuildFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags, "table", []string{"table", "json", "yaml"})
		case "document":
			addOutputFlags(cmd, flags, "yaml", []string{"yaml", "json"})
		}
	}

	return flags
}

func addBuildFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().BoolVar(&flags.KeepSecrets, "keep-secrets", true, "Keep secret manifests after the build")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress progress output")
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags, def string, formats []string) {
	cmd.Flags().StringVarP(&flags.Format, "format", "f", def,
		fmt.Sprintf("Output format (%s)", strings.Join(formats, "|")))
	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, formats)
	})
}

// bindFlags binds flags to viper configuration keys
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := flags.Lookup(flagName); flag != nil {
			_ = viper.BindPFlag(configKey, flag)
		}
	}
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	addValidation(cmd.Flags().Lookup(flagName), validator)
}

// AddPersistentFlagValidation adds validation for a persistent flag
func AddPersistentFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	addValidation(cmd.PersistentFlags().Lookup(flagName), validator)
}

func addValidation(flag *pflag.Flag, validator func(string) error) {
	if flag == nil {
		return
	}

	// Store original value setter
	originalSet := flag.Value.Set

	// Create wrapper that validates
	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: originalSet,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidateFormat checks format against the accepted ones, case-insensitively.
func ValidateFormat(format string, valid []string) error {
	for _, v := range valid {
		if strings.EqualFold(format, v) {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q, must be one of: %s", format, strings.Join(valid, ", "))
}
