// Package ground implements the root host of a dataspace.
//
// ARCHITECTURE:
//
// Single-Goroutine Task Loop:
// Ground owns one FIFO task queue. Every piece of work, dataspace steps as
// well as callbacks posted by drivers, runs as a task on the goroutine that
// calls Run. A turn therefore always completes before the next one begins.
//
// Step Processing Flow:
// 1. Start() enqueues a step task, at most one at a time
// 2. The step runs up to Fuel rounds of Dataspace.RunScripts
// 3. Still busy: the step re-enqueues itself behind any posted tasks
// 4. Idle with no background tasks: stop handlers fire and are cleared
//
// CRITICAL PATTERNS:
//
// Fuel:
// A step never runs more than Fuel rounds. Yielding between steps lets
// posted tasks interleave with a dataspace that never goes idle.
//
// Background Tasks:
// BackgroundTask() returns a release function. While any is unreleased the
// Ground is not quiescent, even when no scripts are runnable.
package ground
