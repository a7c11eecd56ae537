// Package store defines the document-store abstraction the job lifecycle
// engine is built on: get/put/post/delete/head on paths in a hierarchical
// document tree, plus a subscription mechanism for incremental change
// events and an idempotent "ensure path exists" helper.
//
// The core (queue, runner, report) depends only on the Store interface in
// this package, never on a concrete backend. Two backends ship here:
// postgres, a durable JSONB-table-backed implementation that also serves
// as the change-sequencing authority, and memory, an in-process fake used
// by tests. Postgres carries change notification over Redis pub/sub
// (see redis_watch.go), mirroring how the teacher codebase splits
// Postgres-as-source-of-truth from Redis-as-coordination-layer; memory
// delivers changes to its watchers in-process.
//
// Get on a container path (one that was never itself Put, only Ensured or
// implied by children written beneath it) returns the aggregate of its
// immediate children keyed by their own last path segment, the way an
// OADA list endpoint's GET inlines its children. Put and Delete, by
// contrast, always address one exact path: a write two levels below a
// path is invisible to that path's own document and only surfaces via
// Get's child aggregation or a Watch subscription on the direct parent.
package store
