// Package pipeline composes the build stages into ordered sequences and runs
// them.
//
// A Sequence runs its tasks strictly one after another; every task must have
// finished writing its output before the next starts, because later stages
// read what earlier stages wrote. Parallel runs long-lived functions (the
// watcher and the dev server) side by side. A Trigger binds one watch group
// to its sequence and decides what happens when changes arrive while that
// sequence is still running.
package pipeline
