// Package store provides SQLite-backed persistence for page component trees.
//
// The store is the persistence collaborator of an editing session:
//   - pages: one row per page with route, variables, revision and digest
//   - nodes: one row per node (id, parent_id, type, ord, props)
//   - page_revisions: one record per successful save
//
// # Optimistic Concurrency
//
// Every write names the revision it was based on. If the stored revision
// differs the write is rejected with ErrConflict and nothing changes.
// Conflict resolution is left to the caller.
//
// # Deterministic Reads
//
// Rows are returned ORDER BY parent_id (roots first), ord, id COLLATE BINARY
// so repeated loads of the same page produce identical slices.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Props are stored as RFC 8785 canonical JSON (internal/ir/canonical.go) so
// the page digest can be recomputed from the table alone.
package store
