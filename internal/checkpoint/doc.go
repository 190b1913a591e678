// Package checkpoint snapshots the fact and instinct stores as one unit.
//
// Checkpoints are immutable once created, retained until deleted or
// pruned (keep most-recent K), and portable via export/import. Restore
// never mutates live state: it hands back the snapshot plus a diff and
// leaves application to the caller.
package checkpoint
