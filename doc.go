/*
Package arbor is an agentic execution engine: a turn-based loop that lets a
language model reason, call tools, and converge on an answer.

The model and the engine speak a plain-text wire protocol. Each turn the
engine sends the tool catalog, the conversation so far, and a fixed response
format; the model answers with thinking notes, tool-call directives, or a
final answer. Tool calls are executed concurrently with retry and backoff,
and their results are fed back into the next turn.

# Architecture

The engine follows a hexagonal layout. The core loop (internal/runtime)
depends only on ports: a ModelGateway for completions, Tools grouped in a
registry, and a ConversationStore for transcripts. Adapters provide the
concrete edges: subprocess and HTTP tool hosts, MCP servers, Redis or
in-memory persistence, and an HTTP serving surface.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/arbor"
		"github.com/aretw0/arbor/pkg/adapters/gateway"
		"github.com/aretw0/arbor/pkg/tools/fetch"
	)

	func main() {
		eng, err := arbor.New(
			gateway.New("https://models.example.com", gateway.WithToken("...")),
			arbor.WithTools(fetch.New()),
		)
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		result, err := eng.Run(context.Background(), "session-1",
			"Summarize https://example.com for me")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(result.FinalOutput)
	}
*/
package arbor
