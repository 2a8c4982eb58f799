// Package storage persists monitor state across restarts.
//
// Two things are kept:
//   - Snapshots: an opaque blob per day (queue items, seen ids, daily stats)
//   - A journal of published items, trimmed to the most recent entries
package storage
