/*
Package ports defines the driven ports (interfaces) for the Arbor engine.

These interfaces decouple the agentic loop from external implementations,
allowing the engine to work with any model gateway, conversation storage
backend, or tool hosting transport.

# Key Interfaces

  - ModelGateway: the opaque text-generation dependency, one blocking round trip per turn.
  - Tool: a single executable capability (in-process, subprocess-backed or HTTP-backed).
  - ToolProvider: discovery of externally hosted tools over a transport.
  - ConversationStore: persistence for session transcripts (the loop itself never persists).
  - DistributedLocker: distributed locking for concurrent session access across replicas.
*/
package ports
