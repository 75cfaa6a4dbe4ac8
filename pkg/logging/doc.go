// Package logging provides structured logging for the merit runtime with
// unified log handling and level filtering.
//
// The package wraps Go's standard slog package. Every entry carries a
// subsystem label so that output from the scheduler, the resource resolver,
// the metrics engine, and the persistence layer can be told apart when a run
// executes tests in parallel.
//
// # Log Levels
//   - Debug: detailed information for debugging the runtime itself
//   - Info: general informational messages about run progress
//   - Warn: potential issues that do not fail the run
//   - Error: failures and exceptional conditions
//
// # Subsystem Organization
//
//   - Runner: scheduling, dispatch, and run lifecycle
//   - Resolver: resource resolution and teardown
//   - Metrics: statistic accumulators
//   - Checker: remote and deterministic checkers
//   - Store: run persistence
//   - Config: configuration loading and validation
//
// # Usage
//
//	import "merit/pkg/logging"
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//	logging.Info("Runner", "dispatching %d items", len(items))
//	logging.Error("Resolver", err, "teardown of %q failed", name)
package logging
