// Package question implements the single-slot rendezvous through which the
// orchestrator asks the human a question and blocks for the reply.
package question
