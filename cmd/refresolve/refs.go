package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ref-resolver/errs"
)

var (
	refsResolve  bool
	refsBackfill int
)

func init() {
	refsCmd.Flags().BoolVar(&refsResolve, "resolve", false, "Resolve every reference of the paper instead of listing them")
	refsCmd.Flags().IntVar(&refsBackfill, "backfill", 0, "Resolve up to N cached references that have a DOI but no paper yet (no <doi> argument)")
	rootCmd.AddCommand(refsCmd)
}

var refsCmd = &cobra.Command{
	Use:   "refs [<doi>]",
	Short: "List or resolve the references of a cached paper",
	Long: `List the ordered references of a cached paper. With --resolve every
reference is resolved in turn (references with a DOI directly, the others
through the citation search). With --backfill N the citation graph is
extended like the scheduled job of the server does.

Examples:
  refresolve refs 10.1002/biot.201400046
  refresolve refs 10.1002/biot.201400046 --resolve
  refresolve refs --backfill 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefs,
}

func runRefs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if (len(args) == 0) == (refsBackfill <= 0) {
		exitWithError(fmt.Errorf("%w: pass either <doi> or --backfill N", errs.ErrMalformedIdentifier))
	}

	engine, log, err := openEngine(ctx)
	if err != nil {
		exitWithError(err)
	}
	defer log.Sync()

	if refsBackfill > 0 {
		resolved, outcomes, err := engine.References.Backfill(ctx, refsBackfill)
		if err != nil {
			exitWithError(err)
		}
		if humanOutput {
			printOutcomes(os.Stdout, outcomes)
			fmt.Printf("resolved %d of %d\n", resolved, len(outcomes))
			return nil
		}
		return outputJSON(outcomes)
	}

	doi := args[0]
	if refsResolve {
		outcomes, err := engine.References.ResolveReferences(ctx, doi)
		if err != nil {
			exitWithError(err)
		}
		if humanOutput {
			printOutcomes(os.Stdout, outcomes)
			return nil
		}
		return outputJSON(outcomes)
	}

	rec, err := engine.Cache.Lookup(ctx, doi)
	if err != nil {
		exitWithError(err)
	}
	if rec == nil {
		exitWithError(fmt.Errorf("%w: no cached paper for %s", errs.ErrNoMatchFound, doi))
	}
	if humanOutput {
		printReferences(os.Stdout, rec.References)
		return nil
	}
	return outputJSON(rec.References)
}
