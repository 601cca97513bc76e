// Package continuation tracks what the orchestrator was doing when it
// submitted a job, so the job's eventual outcome can resume the conversation.
package continuation
