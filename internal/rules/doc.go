// Package rules runs compiled rule programs.
//
// A Program is a list of actors. Each actor declares fields, asserts
// templates built from them, and reacts to assertion and message events
// with sends, ad-hoc asserts and retracts, field writes or a stop. Boot
// turns a Program into a dataspace boot function; package compiler builds
// Programs from CUE.
package rules
