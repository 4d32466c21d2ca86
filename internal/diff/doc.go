// Package diff parses the unified diff format into addressable hunks
// and line maps.
//
// Added lines are keyed by their line number in the new file, removed
// lines by their line number in the old file. Malformed hunk headers are
// skipped rather than reported: lines that arrive before the first valid
// header are dropped, and an empty patch parses to an empty result. The
// rest of the pipeline addresses findings by new-file line numbers
// produced here.
package diff
