// Package runner implements the turn orchestrator for AgencyKit.
//
// The Runner drives the decision loop of a run: it asks the active agent's
// model for one decision at a time, executes requested tool calls (in
// parallel when the agent allows it and the tools' side effects permit),
// routes validated hand-offs across the agency graph, and records everything
// as turns on the run's thread.
//
// # Responsibilities (abridged)
//   - Decision loop with turn and wall-clock budgets
//   - Tool dispatch with per-call timeouts, panic recovery and deterministic
//     result ordering
//   - Hand-off validation against the agency graph
//   - Run lifecycle management, cancellation and resource teardown
//
// See runner.go for the public surface and orchestrator.go for the loop.
package runner
