package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kreate/internal/deep"
)

var viewCmd = &cobra.Command{
	Use:     "view [path]",
	Aliases: []string{"v"},
	Short:   "Show the merged konfig",
	Long: `Print the konfig after all layers, includes and value files are merged.
An optional dotted path selects part of it.

Examples:
  kreate view                     # The whole konfig
  kreate view app                 # Only the app section
  kreate view Deployment.main     # One komponent structure
  kreate view val -f json         # Values as JSON`,
	Args: cobra.MaximumNArgs(1),
	RunE: runView,
}

var viewFlags *StandardFlags

func init() {
	rootCmd.AddCommand(viewCmd)

	viewFlags = AddStandardFlags(viewCmd, "document")
}

func runView(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var value any = s.konf.Data
	if len(args) == 1 && args[0] != "" && args[0] != "." {
		value, err = deep.Require(s.konf.Data, args[0])
		if err != nil {
			return err
		}
	}

	s.reportWarnings(cmd.ErrOrStderr())
	return writeDocument(cmd.OutOrStdout(), viewFlags.Format, value)
}

// writeDocument writes value as YAML or indented JSON.
func writeDocument(w io.Writer, format string, value any) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case "yaml", "":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(value)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
