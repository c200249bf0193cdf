// Package compiler turns CUE rule programs into rules.Program values.
//
// ARCHITECTURE:
//   - Compile walks the "actors" struct with the CUE Go API
//   - Values cross over as canonical JSON, so records are written
//     {"@Label": [fields...]} and floats are rejected
//   - Validate reports semantic errors, all at once, with E1xx codes
//   - AnalyzeCycles warns about reactions that can trigger each other
//
// CRITICAL PATTERNS:
//   - "$name" is a capture in patterns and a reference in templates
//   - "_" discards in patterns; "$$" escapes a literal dollar
//   - Objects are atoms: variables may only appear in records and arrays
package compiler
