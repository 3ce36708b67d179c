/*
Package types holds the data model shared by pkg/coordinator,
pkg/storage, and pkg/agent: Node, TaskInstance, WorkAssignment, and
their small value types.

# Ownership

  - Node records are owned by pkg/coordinator and persisted through
    pkg/storage. PubKey is the trust-on-first-use anchor: empty until
    the node's first successful handshake, then immutable.
  - TaskInstance records are owned by pkg/coordinator and persisted
    through pkg/storage. Once CompletionType.Terminal() is true, a
    TaskInstance is never mutated again.
  - WorkAssignment is purely in-memory, held by pkg/coordinator's
    worker registry for the duration of one dispatch; it is never
    persisted.

# Integration points

  - pkg/storage persists Node and TaskInstance as JSON in bbolt buckets.
  - pkg/coordinator is the sole mutator of all three types.
  - pkg/rpc's wire structs carry these types' fields across the
    network without importing this package directly, keeping the wire
    format decoupled from in-memory representation changes.
  - pkg/rpc's TaskStatusEntry is a flattened view of TaskStatus for a
    CLI consumer that should not need to import pkg/types.

# Thread safety

None of these types are safe for concurrent mutation; pkg/coordinator's
two-lock model (lock, then queueLock) is what actually synchronizes
access. Treat a TaskInstance or Node value as owned by whichever
goroutine holds the relevant lock when it was read.
*/
package types
