package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor is a tool-using agent loop for language models",
	Long: `Arbor drives a conversation between a language model and a set of tools.
The model requests tool calls through a plain-text protocol, arbor executes
them concurrently, and the loop continues until the model produces a final
answer or the turn budget runs out.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default "+cli.DefaultConfigPath+")")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
}

func loadConfig(cmd *cobra.Command) (cli.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return cli.LoadConfig(path)
}
