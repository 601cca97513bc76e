// Package transcript persists the assistant conversation in SQLite so the
// transcript survives client restarts. Hidden entries carry synthetic turns
// the human never sees but the planner context depends on.
package transcript
