package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contextd/src/infrastructure/log"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "contextd",
	Short: "Retrieval-augmented document service",
	Long: `contextd ingests documents into a searchable vector index and answers
questions about them through a tool-calling agent backed by Ollama.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Setup(viper.GetString("log.mode"), viper.GetInt("log.verbosity"))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
