package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ref-resolver/errs"
	"ref-resolver/models"
)

var (
	resolveDOI      string
	resolveCitation string
	resolveURL      string
	resolveFile     string
)

func init() {
	resolveCmd.Flags().StringVar(&resolveDOI, "doi", "", "DOI to resolve (bare, doi: or https://doi.org/ form)")
	resolveCmd.Flags().StringVar(&resolveCitation, "citation", "", "Free-text citation to search for")
	resolveCmd.Flags().StringVar(&resolveURL, "url", "", "Publisher article URL")
	resolveCmd.Flags().StringVar(&resolveFile, "file", "", "Text file with a reference list; every entry is resolved")
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a citation, DOI or URL into a paper record",
	Long: `Resolve exactly one citation, DOI or publisher URL. Cached records are
returned without touching the network.

Examples:
  refresolve resolve --doi 10.1002/biot.201400046
  refresolve resolve --citation "Senís E, et al. CRISPR/Cas9-mediated genome engineering. Biotechnol J. 2014"
  refresolve resolve --url https://onlinelibrary.wiley.com/doi/abs/10.1002/biot.201400046
  refresolve resolve --file references.txt`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

// resolveRequest baut die Anfrage aus den Flags; genau eines muss gesetzt sein.
func resolveRequest(doi, citation, url string) (models.ResolutionRequest, error) {
	var reqs []models.ResolutionRequest
	if v := strings.TrimSpace(doi); v != "" {
		reqs = append(reqs, models.DOIRequest(v))
	}
	if v := strings.TrimSpace(citation); v != "" {
		reqs = append(reqs, models.CitationRequest(v))
	}
	if v := strings.TrimSpace(url); v != "" {
		reqs = append(reqs, models.URLRequest(v))
	}
	if len(reqs) != 1 {
		return models.ResolutionRequest{}, fmt.Errorf("%w: exactly one of --doi, --citation, --url or --file is required", errs.ErrMalformedIdentifier)
	}
	return reqs[0], nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var text string
	if resolveFile != "" {
		if resolveDOI != "" || resolveCitation != "" || resolveURL != "" {
			exitWithError(fmt.Errorf("%w: --file cannot be combined with --doi, --citation or --url", errs.ErrMalformedIdentifier))
		}
		data, err := os.ReadFile(resolveFile)
		if err != nil {
			exitWithError(fmt.Errorf("%w: reading %s: %v", errs.ErrMalformedIdentifier, resolveFile, err))
		}
		text = string(data)
	}
	req, err := resolveRequest(resolveDOI, resolveCitation, resolveURL)
	if text == "" && err != nil {
		exitWithError(err)
	}

	engine, log, err := openEngine(ctx)
	if err != nil {
		exitWithError(err)
	}
	defer log.Sync()

	if text != "" {
		outcomes, err := engine.References.ResolveText(ctx, text)
		if err != nil {
			exitWithError(err)
		}
		if humanOutput {
			printOutcomes(os.Stdout, outcomes)
			return nil
		}
		return outputJSON(outcomes)
	}

	rec, err := engine.Resolver.Resolve(ctx, req)
	if err != nil {
		exitWithError(err)
	}
	if humanOutput {
		printRecord(os.Stdout, rec)
		return nil
	}
	return outputJSON(rec)
}
