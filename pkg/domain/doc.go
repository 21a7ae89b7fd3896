// Package domain holds the core value types of the Arbor engine: transcript
// messages, tool calls and results, run state and the error taxonomy.
//
// Domain types carry no behavior beyond simple bookkeeping. The runtime loop,
// registry and adapters operate on them; nothing in this package performs IO.
package domain
