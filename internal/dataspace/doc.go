// Package dataspace implements the actor runtime: a Dataspace holding the
// shared assertion set and observer index, the Actors that publish into it,
// and the Facet trees that structure each Actor's conversations.
//
// ARCHITECTURE:
//
// Turn-based execution:
// An Actor runs its queued scripts to completion, repairing dataflow damage
// after each one. The changes a turn makes (assertions, retractions,
// messages, spawns) are collected as pending actions and committed by the
// Dataspace when the turn ends. Consecutive assertion changes coalesce into
// one patch, so an assert/retract pair inside one turn is never observed.
//
// Facet lifecycle:
// starting -> live -> stopping -> stopped. A stop request is a script, so it
// never interrupts the running one. Stopping tears the facet tree down
// deepest first: every descendant's endpoints are retracted before any stop
// handler runs, and stop handlers run as deferred turns after the
// retractions are committed.
//
// Failure isolation:
// A panic inside a script is recovered at the turn boundary. The offending
// Actor's uncommitted work is dropped, its facets are aborted, and its
// committed assertions are retracted when it quits. Other Actors are not
// affected.
//
// CRITICAL PATTERNS:
//
// Single-threaded: a Dataspace and everything in it belongs to one goroutine
// (the host's). Only Dataspace.Start and the Host are meant to be reached
// from elsewhere.
//
// Deterministic: scripts run FIFO per actor, actors run in the order they
// became runnable, bag iteration follows the value order.
package dataspace
