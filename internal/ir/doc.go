// Package ir provides the canonical value model shared by every dataspace
// package.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps values the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Records (IRRecord) are the structured values assertions are built from
//   - Compare is a total order; Equal and Key agree with it
//   - Canonical JSON (MarshalCanonical) is the only encoding used for identity
package ir
