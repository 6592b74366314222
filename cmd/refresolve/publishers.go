package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ref-resolver/directory"
	"ref-resolver/models"
)

var (
	publisherDirectory string
	publisherPrefixes  string
)

func init() {
	publishersCmd.Flags().StringVar(&publisherDirectory, "directory", os.Getenv("PUBLISHER_DIRECTORY"), "Publisher directory (CSV or YAML); embedded default if empty")
	publishersCmd.Flags().StringVar(&publisherPrefixes, "prefixes", os.Getenv("PUBLISHER_PREFIXES"), "DOI prefix table (CSV)")
	rootCmd.AddCommand(publishersCmd)
}

var publishersCmd = &cobra.Command{
	Use:   "publishers",
	Short: "List the publisher profiles of the directory",
	Args:  cobra.NoArgs,
	RunE:  runPublishers,
}

func runPublishers(cmd *cobra.Command, args []string) error {
	table, err := directory.LoadTable(publisherDirectory, publisherPrefixes)
	if err != nil {
		exitWithError(fmt.Errorf("%w: %v", errConfig, err))
	}
	if !humanOutput {
		return outputJSON(table.Profiles)
	}
	printProfiles(table.Profiles)
	fmt.Printf("\n%d profiles, %d prefixes\n", len(table.Profiles), len(table.Prefixes))
	return nil
}

func printProfiles(profiles []models.PublisherProfile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tSCRAPER\tURL")
	for _, p := range profiles {
		target := p.URLTemplate
		if p.RedirectResolved {
			target = "(via doi resolver)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.MatchPattern, p.ScraperID, target)
	}
	w.Flush()
}
