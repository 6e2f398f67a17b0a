// Package ws implements the WebSocket broadcast hub for livefeed.
//
// Hub tracks the connected subscribers and fans out one JSON message per
// store mutation to each of them.
//
// New(cfg, metrics) creates a Hub.
// Hub.Broadcast(ev) serializes ev once and enqueues it on every subscriber's
// send buffer without blocking; a subscriber whose buffer is full is
// disconnected, so a live subscriber never misses or reorders an event.
// Hub.ServeHTTP upgrades an HTTP connection, registers it, and blocks until
// the connection closes, then unregisters it.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes every connection.
//
// Message format, one per event:
//
//	{"type":"insert","id":1,"timestamp":1700000000,"body":"..."}
//	{"type":"delete","id":1,"timestamp":1700000000,"body":"..."}
//	{"type":"mutate","timestamp":1700000000,"old":{...},"new":{...}}
//
// Inbound messages are logged and otherwise ignored. The upgrader accepts all
// origins. Which paths may upgrade is decided by the gateway package.
package ws
