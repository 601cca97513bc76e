// Package planner talks to the remote chat-completion service that turns user
// messages into action plans. It mirrors the retry, backoff, and tolerant
// JSON decoding conventions of the other service clients in this repository.
package planner
