// Package transport connects the engine to the inference server. The push
// channel delivers events while connected; the arbiter arms a fallback poll
// whenever the channel is down so the registry never goes stale. The HTTP
// client covers the server's request/response API.
package transport
