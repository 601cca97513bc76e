// Package registry keeps the canonical client-side view of the server's job
// queue. It reconciles full snapshots from the poll fallback with incremental
// deltas from the push channel, maintains aggregate counters, deduplicates
// user-visible notifications via a bounded status history, and fans terminal
// transitions out to subscribers.
package registry
