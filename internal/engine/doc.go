// Package engine assembles the client: notification center, job registry,
// transport arbiter, continuation ledger, question gate, transcript store,
// and the action orchestrator, behind one lifecycle with a single-instance
// lock. Push events are decoded here and routed into the registry and model
// state.
package engine
