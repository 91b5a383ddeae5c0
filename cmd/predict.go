package cmd

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeageon/RBS-cal/config"
	"github.com/jeageon/RBS-cal/internal/rbs"
)

// predictCmd estimates expression for a sequence from the command line.
var predictCmd = &cobra.Command{
	Use:                        "predict [seq]",
	Run:                        runPredict,
	Short:                      "Predict translation initiation rates for a sequence",
	SuggestionsMinimumDistance: 2,
	Example:                    "  rbscal predict ACCTCCTTAAAAAAATGGCTAGC",
	Long: `Predict translation initiation rates with OSTIR for a raw
sequence or a FASTA/CSV file and write the rows as JSON.`,
}

// set flags
func init() {
	predictCmd.Flags().StringP("in", "i", "", "input FASTA or CSV file")
	predictCmd.Flags().StringP("out", "o", "", "output file name, stdout when empty")
	predictCmd.Flags().StringP("anti-sd", "a", config.DefaultASD, "anti-Shine-Dalgarno sequence")
	predictCmd.Flags().IntP("start", "s", 0, "1-indexed start of the prediction window")
	predictCmd.Flags().IntP("end", "e", 0, "1-indexed end of the prediction window")
	predictCmd.Flags().IntP("threads", "j", 1, "OSTIR worker count")
	predictCmd.Flags().Bool("print-sequence", false, "include the mRNA sequence in output rows")
	predictCmd.Flags().Bool("print-asd", false, "include the anti-SD sequence in output rows")

	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) {
	conf := config.New()

	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	asd, _ := cmd.Flags().GetString("anti-sd")
	start, _ := cmd.Flags().GetInt("start")
	end, _ := cmd.Flags().GetInt("end")
	threads, _ := cmd.Flags().GetInt("threads")
	printSeq, _ := cmd.Flags().GetBool("print-sequence")
	printASD, _ := cmd.Flags().GetBool("print-asd")

	req := rbs.EstimateRequest{
		Predict: rbs.PredictRequest{
			ASD:           strings.TrimSpace(asd),
			Threads:       threads,
			Start:         start,
			End:           end,
			PrintSequence: printSeq,
			PrintASD:      printASD,
		},
	}

	switch {
	case in != "":
		req.Predict.Input = in
		req.Predict.InputType = rbs.DetectInputType(in)
		if req.Predict.InputType == "fasta" {
			if seq, err := rbs.ExtractFirstFASTASequence(in); err == nil {
				req.SequenceForContext = seq
			}
		}
	case len(args) > 0:
		sequence := strings.TrimSpace(args[0])
		if sequence == "" {
			log.Fatal("Sequence input is empty")
		}
		req.Predict.Input = sequence
		req.Predict.InputType = "string"
		req.SequenceForContext = rbs.Normalize(sequence)
	default:
		log.Fatal("pass a sequence argument or an --in file")
	}

	if err := rbs.CheckDependencies(conf); err != nil {
		log.Fatalf("%v", err)
	}

	result, err := rbs.Estimate(context.Background(), rbs.NewOSTIR(conf), req, nil)
	if err != nil {
		log.Fatalf("%v", err)
	}

	writeResult(out, result)
}

// writeResult writes indented JSON to the out file, or stdout when
// no out file was set
func writeResult(out string, result interface{}) {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	encoded = append(encoded, '\n')

	if out == "" {
		os.Stdout.Write(encoded) // nolint:errcheck
		return
	}
	if err := os.WriteFile(out, encoded, 0644); err != nil {
		log.Fatalf("failed to write %s: %v", out, err)
	}
}
