package cmd

import (
	"log"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeageon/RBS-cal/config"
	"github.com/jeageon/RBS-cal/internal/rbs"
)

// serveCmd starts the HTTP front end over the estimate/design pipeline.
var serveCmd = &cobra.Command{
	Use:                        "serve",
	Short:                      "Serve the RBS calculator over HTTP",
	Run:                        runServe,
	SuggestionsMinimumDistance: 2,
	Long: `Serve expression estimates and RBS design over HTTP.
Settings come from environment variables (OSTIR_BIN, HOST, PORT,
RBS_DESIGN_* and friends) with flags taking precedence.`,
}

// set flags
func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "interface to bind, overrides HOST")
	serveCmd.Flags().Int("port", 8000, "port to listen on, overrides PORT")
	viper.BindPFlag("host", serveCmd.Flags().Lookup("host")) // nolint:errcheck
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port")) // nolint:errcheck

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	conf := config.New()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger()

	if err := rbs.CheckDependencies(conf); err != nil {
		log.Fatalf("%v", err)
	}

	server := rbs.NewServer(conf, rbs.NewOSTIR(conf), logger)
	if err := server.Start(); err != nil {
		log.Fatalf("%v", err)
	}
}
