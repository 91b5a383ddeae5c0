// Package cmd is for command line interactions with the rbscal application
package cmd

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "rbscal",
	Short: `Predict and design ribosome binding sites with OSTIR.
Estimate translation initiation rates for a sequence, or search for
RBS candidates that hit a target expression level`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// a .env beside the binary overrides nothing already in the environment
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
