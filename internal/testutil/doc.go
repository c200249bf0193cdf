// Package testutil provides deterministic helpers shared by the dataspace
// test suites: an in-memory trace recorder and name generators whose output
// is stable across runs, so traces can be compared against golden files.
package testutil
