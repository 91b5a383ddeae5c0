package cmd

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jeageon/RBS-cal/config"
	"github.com/jeageon/RBS-cal/internal/rbs"
)

// designCmd searches for RBS sequences hitting a target expression.
var designCmd = &cobra.Command{
	Use:                        "design",
	Run:                        runDesign,
	Short:                      "Design RBS candidates for a target expression level",
	SuggestionsMinimumDistance: 2,
	Example:                    "  rbscal design -p TTCTAGAG -c ATGGCTAGCAAAGGAGAA -t 5000",
	Long: `Search for ribosome binding sites between a pre-sequence and a
CDS whose predicted expression is close to the target. Candidates are
screened over truncated sequence windows and the best are re-scored
against the full-length construct before ranking.`,
}

// set flags
func init() {
	designCmd.Flags().StringP("pre", "p", "", "sequence upstream of the RBS (required)")
	designCmd.Flags().StringP("cds", "c", "", "coding sequence, starting with ATG/GTG/TTG (required)")
	designCmd.Flags().Float64P("target", "t", 0, "target expression level (required)")
	designCmd.Flags().StringP("anti-sd", "a", "", "anti-Shine-Dalgarno sequence")
	designCmd.Flags().IntP("iterations", "n", 0, "annealing iterations, config default when 0")
	designCmd.Flags().IntP("top", "k", 0, "number of candidates returned, config default when 0")
	designCmd.Flags().Int("min-length", 6, "minimum RBS length")
	designCmd.Flags().Int("max-length", 12, "maximum RBS length")
	designCmd.Flags().IntP("threads", "j", 1, "OSTIR worker count")
	designCmd.Flags().String("seed", "", "random seed for a reproducible search")
	designCmd.Flags().StringP("out", "o", "", "output file name, stdout when empty")

	designCmd.MarkFlagRequired("pre")    // nolint:errcheck
	designCmd.MarkFlagRequired("cds")    // nolint:errcheck
	designCmd.MarkFlagRequired("target") // nolint:errcheck

	rootCmd.AddCommand(designCmd)
}

func runDesign(cmd *cobra.Command, args []string) {
	conf := config.New()

	pre, _ := cmd.Flags().GetString("pre")
	cds, _ := cmd.Flags().GetString("cds")
	target, _ := cmd.Flags().GetFloat64("target")
	asd, _ := cmd.Flags().GetString("anti-sd")
	iterations, _ := cmd.Flags().GetInt("iterations")
	top, _ := cmd.Flags().GetInt("top")
	minLength, _ := cmd.Flags().GetInt("min-length")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	threads, _ := cmd.Flags().GetInt("threads")
	seed, _ := cmd.Flags().GetString("seed")
	out, _ := cmd.Flags().GetString("out")

	// the same form validation the HTTP surface uses
	form := url.Values{}
	form.Set("preSequence", pre)
	form.Set("postSequence", cds)
	form.Set("targetExpression", fmt.Sprintf("%g", target))
	form.Set("antiSd", asd)
	form.Set("rbsMinLength", fmt.Sprintf("%d", minLength))
	form.Set("rbsMaxLength", fmt.Sprintf("%d", maxLength))
	form.Set("threads", fmt.Sprintf("%d", threads))
	form.Set("randomSeed", seed)
	if iterations > 0 {
		form.Set("iterations", fmt.Sprintf("%d", iterations))
	}
	if top > 0 {
		form.Set("topCandidates", fmt.Sprintf("%d", top))
	}

	req, err := rbs.ParseDesignRequest(form, conf)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := rbs.CheckDependencies(conf); err != nil {
		log.Fatalf("%v", err)
	}

	for _, warning := range req.TruncationWarnings {
		log.Println(warning)
	}

	result, err := rbs.Design(context.Background(), conf, rbs.NewOSTIR(conf), req, nil)
	if err != nil {
		log.Fatalf("%v", err)
	}

	writeResult(out, result)
}
