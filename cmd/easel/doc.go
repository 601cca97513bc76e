// Command easel is the CLI for the easel client engine: run the engine,
// inspect its queue and notifications, and chat with the assistant.
package main
