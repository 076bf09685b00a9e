package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kreate/internal/registry"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List all komponents of the konfig",
	Long: `List every komponent the konfig declares, including patches, with the
file each one is written to. Nothing is rendered or written.

Examples:
  kreate list                     # List komponents in table format
  kreate list -f yaml             # Output as YAML
  kreate list -f json             # Output as JSON
  kreate list --klasses           # List the known kinds instead`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var (
	listFlags   *StandardFlags
	listKlasses bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddStandardFlags(listCmd, "output")
	listCmd.Flags().BoolVar(&listKlasses, "klasses", false, "List the known kinds with their variant and template")
}

// komponentInfo is the listed view of one komponent.
type komponentInfo struct {
	ID        string `json:"id" yaml:"id"`
	Kind      string `json:"kind" yaml:"kind"`
	Variant   string `json:"variant" yaml:"variant"`
	Shortname string `json:"shortname" yaml:"shortname"`
	Name      string `json:"name" yaml:"name"`
	Target    string `json:"target,omitempty" yaml:"target,omitempty"`
	File      string `json:"file,omitempty" yaml:"file,omitempty"`
	Secret    bool   `json:"secret,omitempty" yaml:"secret,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := s.kreate(ctx); err != nil {
		return err
	}
	s.reportWarnings(cmd.ErrOrStderr())

	out := cmd.OutOrStdout()
	if listKlasses {
		return listKlassInfos(out, s.app.Klasses())
	}

	komponents := s.app.Komponents()
	infos := make([]komponentInfo, 0, len(komponents))
	for _, k := range komponents {
		infos = append(infos, newKomponentInfo(k))
	}

	switch strings.ToLower(listFlags.Format) {
	case "json", "yaml":
		return writeDocument(out, listFlags.Format, infos)
	case "table":
		if len(infos) == 0 {
			fmt.Fprintln(out, "No komponents found.")
			return nil
		}
		return outputTable(out, infos)
	default:
		return fmt.Errorf("unsupported format: %s", listFlags.Format)
	}
}

func newKomponentInfo(k *registry.Komponent) komponentInfo {
	return komponentInfo{
		ID:        k.ID,
		Kind:      k.Kind,
		Variant:   k.Variant().String(),
		Shortname: k.Shortname,
		Name:      k.Name,
		Target:    k.TargetID,
		File:      k.Filename(),
		Secret:    k.Secret,
	}
}

func outputTable(w io.Writer, infos []komponentInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVARIANT\tNAME\tTARGET\tFILE")
	for _, info := range infos {
		target := info.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.ID, info.Variant, info.Name, target, info.File)
	}
	return tw.Flush()
}

// klassInfo is the listed view of one klass.
type klassInfo struct {
	Kind     string `json:"kind" yaml:"kind"`
	Variant  string `json:"variant" yaml:"variant"`
	Template string `json:"template" yaml:"template"`
	Secret   bool   `json:"secret,omitempty" yaml:"secret,omitempty"`
}

func listKlassInfos(w io.Writer, klasses *registry.Klasses) error {
	kinds := klasses.Kinds()
	infos := make([]klassInfo, 0, len(kinds))
	for _, kind := range kinds {
		k, _ := klasses.Lookup(kind)
		infos = append(infos, klassInfo{
			Kind:     kind,
			Variant:  k.Variant.String(),
			Template: k.Template(),
			Secret:   k.Secret(),
		})
	}

	switch strings.ToLower(listFlags.Format) {
	case "json", "yaml":
		return writeDocument(w, listFlags.Format, infos)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tVARIANT\tTEMPLATE")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Kind, info.Variant, info.Template)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", listFlags.Format)
	}
}
