// Package types defines the shared record and event types used by the server
// and by clients of its query and subscription endpoints. The JSON encoding
// of these types is the wire format of GET /data and of the event stream.
package types
