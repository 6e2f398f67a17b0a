// Package probe inspects a running livefeed server from the outside.
//
// Stats scrapes /metrics and summarizes the livefeed_* families.
// Tail subscribes to the event stream and hands each decoded event to a
// callback until the context ends or the server closes the connection.
package probe
