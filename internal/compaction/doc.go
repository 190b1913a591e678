// Package compaction plans budget-aware partitioning of context items
// into retain, summarize and drop sets. Plans are advisory and never
// applied by this package; callers checkpoint before acting on a plan
// that drops anything.
package compaction
