package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kreate/internal/config"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Render the konfig into manifests",
	Long: `Load the konfig, create every komponent, bind patches to their targets,
render all templates and write the manifests to the output directory.
The output directory is wiped first.

Examples:
  kreate build                          # Build kreate.yaml into build/
  kreate build -k deploy/shop.konf      # Build another konfig
  kreate build --set app.env=prd        # Override a konfig value
  kreate build --dummy                  # Render secrets as placeholders
  kreate build --keep-secrets=false     # Remove secret manifests afterwards`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var buildFlags *StandardFlags

func init() {
	rootCmd.AddCommand(buildCmd)

	buildFlags = AddStandardFlags(buildCmd, "build")
	bindFlags(buildCmd.Flags(), map[string]string{
		"keep-secrets": config.KeyKeepSecrets,
	})
}

func runBuild(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx := cmd.Context()

	s, err := newSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := s.build(ctx); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	s.reportWarnings(cmd.ErrOrStderr())
	if !buildFlags.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Built %d komponents of %s into %s in %v\n",
			s.app.Count(), s.konf.AppName, s.settings.OutputDir,
			time.Since(startTime).Round(time.Millisecond))
	}
	return nil
}
