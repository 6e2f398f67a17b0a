// Package api implements the HTTP query API for livefeed.
//
// New(store, subscribers, onFatal) returns an http.Handler that serves:
//
//	GET /data?start=<int>&stop=<int>  — records with start <= timestamp < stop,
//	                                    ordered by timestamp; both bounds optional
//	GET /healthz                      — record and subscriber counts
//
// /data rejects unknown parameters, repeated bounds and non-integer bounds
// with 400 and a one-line plaintext body. Successful responses carry a strong
// ETag derived from the body; a matching If-None-Match yields 304.
//
// A store failure is unrecoverable: the handler answers 500 and reports the
// error to onFatal, which is expected to stop the process.
package api
