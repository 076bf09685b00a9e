package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kreate/internal/config"
	"github.com/conneroisu/kreate/internal/logging"
	"github.com/conneroisu/kreate/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild whenever the konfig changes",
	Long: `Build once, then watch the konfig directory and rebuild after every
change. The output directory is never watched. Bursts of changes are
grouped into one rebuild.

Examples:
  kreate watch                    # Watch the directory of kreate.yaml
  kreate watch --debounce 1s      # Wait longer before rebuilding
  kreate watch -v                 # Print every changed file`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchVerbose bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Print every changed file")
	watchCmd.Flags().Duration("debounce", config.DefaultWatchDebounce, "Delay before a rebuild")
	bindFlags(watchCmd.Flags(), map[string]string{
		"debounce": config.KeyWatchDebounce,
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	rebuild(ctx, out, errOut)

	logCfg, err := settings.LoggerConfig()
	if err != nil {
		return err
	}
	logCfg.Output = errOut
	fileWatcher, err := watcher.NewFileWatcher(settings.Watch.Debounce, logging.NewLogger(logCfg))
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.IgnoreFilter(settings.Watch.Ignore))
	fileWatcher.AddFilter(watcher.ExcludeDirFilter(settings.OutputDir))
	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		if watchVerbose {
			for _, event := range events {
				fmt.Fprintf(out, "   %s: %s\n", event.Type, event.Path)
			}
		} else {
			fmt.Fprintf(out, "%d file(s) changed\n", len(events))
		}
		rebuild(ctx, out, errOut)
		return nil
	})

	dir := settings.KonfigDir()
	if err := fileWatcher.AddRecursive(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fileWatcher.Start(ctx)
	fmt.Fprintf(out, "Watching %s for changes... (Press Ctrl+C to stop)\n", dir)

	<-ctx.Done()
	fmt.Fprintln(out, "Stopping file watcher...")
	return nil
}

// rebuild runs one build. Failures are reported, never fatal, so the
// next change gets another try.
func rebuild(ctx context.Context, out, errOut io.Writer) {
	start := time.Now()
	s, err := newSession(ctx, errOut)
	if err == nil {
		err = s.build(ctx)
	}
	if err != nil {
		fmt.Fprintf(errOut, "Build failed: %v\n", err)
		return
	}
	s.reportWarnings(errOut)
	fmt.Fprintf(out, "Built %d komponents in %v\n", s.app.Count(), time.Since(start).Round(time.Millisecond))
}
