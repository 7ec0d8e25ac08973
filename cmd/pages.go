package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/trattoria/internal/content"
)

var pagesCmd = &cobra.Command{
	Use:     "pages",
	Aliases: []string{"ls"},
	Short:   "List pages and their sections",
	Long: `List every page with its visibility and sections in render order.

Examples:
  trattoria pages                 # Table of pages
  trattoria pages -s              # Include each page's sections
  trattoria pages -o yaml         # Pages and sections as YAML`,
	RunE: runPages,
}

var (
	pagesFlags        *StandardFlags
	pagesWithSections bool
)

func init() {
	rootCmd.AddCommand(pagesCmd)
	pagesFlags = AddStandardFlags(pagesCmd, "output")
	pagesCmd.Flags().BoolVarP(&pagesWithSections, "sections", "s", false, "Include sections in table output")
}

// pageListing is one page with its sections in render order.
type pageListing struct {
	content.Page `yaml:",inline"`
	Sections     []content.Section `json:"sections" yaml:"sections"`
}

func runPages(cmd *cobra.Command, args []string) error {
	if err := pagesFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	s, err := loadSite(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	listings, err := listPages(cmd.Context(), s.repo)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch pagesFlags.OutputFormat {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	case formatYAML:
		return yaml.NewEncoder(out).Encode(listings)
	}

	if len(listings) == 0 {
		fmt.Fprintln(out, "No pages found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tTITLE\tVISIBLE\tSYSTEM\tSECTIONS")
	for _, l := range listings {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%d\n", l.Slug, l.Title, l.IsVisible, l.IsSystem, len(l.Sections))
		if !pagesWithSections {
			continue
		}
		for _, sec := range l.Sections {
			state := "visible"
			if !sec.IsVisible {
				state = "hidden"
			}
			fmt.Fprintf(w, "  %d. %s\t%s\t%s\t\t\n", sec.SortOrder, sec.Type, state, shortID(sec.ID))
		}
	}
	return w.Flush()
}

// listPages loads every page sorted by slug with its sections in render
// order, hidden ones included.
func listPages(ctx context.Context, repo content.Repository) ([]pageListing, error) {
	pages, err := repo.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Slug < pages[j].Slug })

	listings := make([]pageListing, 0, len(pages))
	for _, p := range pages {
		sections, err := repo.ListSections(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list sections of %s: %w", p.Slug, err)
		}
		sort.SliceStable(sections, func(i, j int) bool { return sections[i].SortOrder < sections[j].SortOrder })
		listings = append(listings, pageListing{Page: p, Sections: sections})
	}
	return listings, nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
