// Package metrics provides thread-safe numeric accumulators with cached
// derived statistics.
//
// An accumulator is registered as a scoped resource: tests resolve it by
// name, the resolver caches one instance per scope, and the runner
// snapshots every shared accumulator into the run result. Recording
// invalidates the statistics cache; any derived attribute read afterwards
// recomputes from the full observation set, so reads interleaved with
// writes are always consistent with all observations recorded so far.
package metrics
