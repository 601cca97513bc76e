// Package orchestrator runs the assistant's action pipeline. A user message
// becomes a planner call, the planner's actions execute strictly in order
// against the server, and failures buy a bounded number of synthetic
// correction turns. Some actions suspend the turn: questions wait on the
// gate, long-running jobs register continuations that resume when the job
// reaches a terminal status.
package orchestrator
