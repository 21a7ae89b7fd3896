package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
)

// RunOptions configures one interactive session.
type RunOptions struct {
	SessionID string
	Plain     bool // Disable markdown rendering even on a TTY.
	Quiet     bool
}

// RunInteractive drives a REPL-style conversation on stdin/stdout until EOF,
// "exit", or context cancellation.
func RunInteractive(ctx context.Context, eng *arbor.Engine, opts RunOptions) error {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	pretty := !opts.Plain && term.IsTerminal(int(os.Stdout.Fd()))
	var render func(string) (string, error)
	if pretty {
		render = tui.NewRenderer()
	}

	if !opts.Quiet {
		if pretty {
			tui.PrintBanner()
		}
		printSystemMessage("Session '%s' active. Type 'exit' to quit.", sessionID)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			if !opts.Quiet {
				printSystemMessage("Bye.")
			}
			return nil
		}

		result, err := eng.Run(ctx, sessionID, input)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		printResult(result, render)
	}
}

func printResult(result *domain.RunResult, render func(string) (string, error)) {
	output := result.FinalOutput
	if render != nil {
		if rendered, err := render(output); err == nil {
			output = rendered
		}
	}
	fmt.Println(output)

	if result.Outcome != domain.OutcomeFinal {
		printSystemMessage("(outcome: %s, turns: %d, tool calls: %d)",
			result.Outcome, result.TurnsUsed, result.ToolCalls)
	}
}
