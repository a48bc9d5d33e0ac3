// Package store implements the Signal Store: the process-wide, in-memory
// container of current signal state with publish/subscribe fan-out.
//
// # Writers
//
// Lifecycle managers are the only writers. Publish applies one live event,
// Reconcile applies a full adapter snapshot and prunes that adapter's stale
// signals, SetMany merges an arbitrary batch. Each call is atomic with
// respect to readers.
//
// # Readers
//
// Transport consumers depend only on Get, GetAll and Subscribe. A
// Subscription is bounded (Config.BufferSize) and uses a drop-oldest
// policy on overflow, so a stalled consumer never blocks a publisher.
// Consumers that need a consistent view after falling behind should
// re-read GetAll.
//
// # Ownership
//
// Each signal id is owned by the source (adapter name) that first wrote it.
// Updates from any other source are ignored until the owner's next
// Reconcile removes the id.
package store
