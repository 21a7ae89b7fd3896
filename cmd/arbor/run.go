package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive session",
	Long: `Starts a REPL-style conversation on the terminal. Each line of input is
sent through the agent loop and the final answer is printed back.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		logger := cli.CreateLogger(debug)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, _, err := cli.BuildEngine(ctx, cfg, logger, debug, false)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		plain, _ := cmd.Flags().GetBool("plain")
		quiet, _ := cmd.Flags().GetBool("quiet")

		if err := cli.RunInteractive(ctx, eng, cli.RunOptions{
			SessionID: sessionID,
			Plain:     plain,
			Quiet:     quiet,
		}); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Session ID to resume (a new one is generated when empty)")
	runCmd.Flags().Bool("plain", false, "Disable markdown rendering")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress banner and status messages")

	// Make 'run' the default when no subcommand is given.
	rootCmd.Run = runCmd.Run
}
