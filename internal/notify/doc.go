// Package notify implements the bounded toast queue and the capped
// recent-errors log that downstream components surface state changes through.
package notify
