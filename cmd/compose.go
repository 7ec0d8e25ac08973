package cmd

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conneroisu/trattoria/internal/composer"
)

var composeCmd = &cobra.Command{
	Use:     "compose <slug>",
	Aliases: []string{"c"},
	Short:   "Render a page the way visitors see it",
	Long: `Compose a page from its stored sections and print the rendered blocks.
Pages without visible output fall back to the default content for their
slug. The composition state is reported on stderr.

Examples:
  trattoria compose home            # Rendered HTML of the home page
  trattoria compose menu -o json    # Composition as JSON`,
	Args: cobra.ExactArgs(1),
	RunE: runCompose,
}

var composeFlags = &StandardFlags{}

func init() {
	rootCmd.AddCommand(composeCmd)
	addOutputFlags(composeCmd, composeFlags, formatHTML, formatJSON)
}

func runCompose(cmd *cobra.Command, args []string) error {
	if err := composeFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	s, err := loadSite(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	comp, err := s.composer.Compose(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printComposition(cmd, composeFlags, comp)
}

func printComposition(cmd *cobra.Command, flags *StandardFlags, comp *composer.Composition) error {
	if flags.OutputFormat == formatJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(comp)
	}

	if !flags.Quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s, %d block(s)\n", comp.Slug, comp.State, len(comp.Blocks))
	}
	switch comp.State {
	case composer.StateNotFound, composer.StateHidden:
		return fmt.Errorf("page %q is not published", comp.Slug)
	}

	html := make([]string, len(comp.Blocks))
	for i, b := range comp.Blocks {
		html[i] = b.HTML
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(html, "\n"))
	return err
}
