// Package skeleton compiles patterns into indexable skeletons and matches
// assertions against many registered patterns at once.
//
// Patterns are ordinary values. The record Discard() matches anything, the
// record Capture(p) matches what p matches and extracts the matched value,
// and any other value matches itself. Records and sequences in a pattern
// match records and sequences of the same label and arity position by
// position. Objects and atoms are compared as literals.
//
// Analyze turns a pattern into an Analysis: a Skeleton (the structural
// shape to index on), the constant positions with their expected values,
// and the capture positions in left-to-right order. An Index groups many
// analyses by skeleton, then by constant paths and values, then by capture
// paths, so that adding or removing one assertion only visits the
// observers whose shape and constants are compatible with it.
package skeleton
