package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the model",
	Long: `Mounts every configured tool provider and prints the resulting catalog.
Useful to verify a provider before starting a session.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		logger := cli.CreateLogger(debug)

		eng, _, err := cli.BuildEngine(cmd.Context(), cfg, logger, debug, false)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		tools := eng.Registry().Tools()
		if len(tools) == 0 {
			fmt.Println("No tools registered.")
			return
		}

		fmt.Println("Registered tools:")
		for _, tool := range tools {
			fmt.Printf("- %s: %s\n", tool.Name(), tool.Description())
		}
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
