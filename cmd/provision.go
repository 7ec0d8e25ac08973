package cmd

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/seed"
)

var provisionCmd = &cobra.Command{
	Use:     "provision",
	Aliases: []string{"p"},
	Short:   "Create missing pages from the standard set or a seed file",
	Long: `Create every standard page that does not exist yet, then apply the
given seed file. Existing pages and their sections are never modified.

Examples:
  trattoria provision                       # Standard pages only
  trattoria provision --file site.yml       # Standard pages plus site.yml
  trattoria provision --file site.yml -o json`,
	RunE: runProvision,
}

var (
	provisionFlags *StandardFlags
	provisionFile  string
)

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionFlags = AddStandardFlags(provisionCmd, "output")
	provisionCmd.Flags().StringVarP(&provisionFile, "file", "f", "", "Seed file to apply after the standard pages")
}

func runProvision(cmd *cobra.Command, args []string) error {
	if err := provisionFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	s, err := loadSite(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	prov := seed.NewProvisioner(s.repo, nil, s.logger)
	op := logging.StartOperation(s.logger, "provision")

	total, err := prov.Apply(ctx, seed.DefaultFile())
	if err != nil {
		op.EndWithError(ctx, err)
		return fmt.Errorf("provision standard pages: %w", err)
	}

	path := provisionFile
	if path == "" {
		path = s.cfg.Seed.Path
	}
	if path != "" {
		res, err := prov.ApplyFile(ctx, path)
		if res != nil {
			total = mergeResults(total, res)
		}
		if err != nil {
			op.EndWithError(ctx, err)
			return fmt.Errorf("apply %s: %w", path, err)
		}
	}
	op.End(ctx)

	return printResult(cmd, provisionFlags, total)
}

// mergeResults folds b into a. Each slug is reported once; a page the
// first run created counts as created.
func mergeResults(a, b *seed.Result) *seed.Result {
	seen := make(map[string]bool, len(a.Created)+len(a.Existing))
	for _, slug := range a.Created {
		seen[slug] = true
	}
	for _, slug := range a.Existing {
		seen[slug] = true
	}
	a.Created = append(a.Created, b.Created...)
	for _, slug := range b.Existing {
		if !seen[slug] {
			seen[slug] = true
			a.Existing = append(a.Existing, slug)
		}
	}
	a.Sections += b.Sections
	return a
}

func printResult(cmd *cobra.Command, flags *StandardFlags, res *seed.Result) error {
	out := cmd.OutOrStdout()
	switch flags.OutputFormat {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case formatYAML:
		return yaml.NewEncoder(out).Encode(res)
	}

	if flags.Quiet {
		return nil
	}
	if len(res.Created) == 0 {
		fmt.Fprintln(out, "Nothing to provision; all pages exist.")
		return nil
	}
	fmt.Fprintf(out, "Created %d page(s) with %d section(s):\n", len(res.Created), res.Sections)
	for _, slug := range res.Created {
		fmt.Fprintf(out, "  %s\n", slug)
	}
	if len(res.Existing) > 0 {
		fmt.Fprintf(out, "Skipped %d existing page(s).\n", len(res.Existing))
	}
	return nil
}
