package types

// Record is one timestamped text entry held by the record store.
type Record struct {
	// ID is assigned by the store on insert and never reused.
	ID int64 `json:"id"`

	// Timestamp is in seconds since the Unix epoch. It may lie in the past
	// or the future.
	Timestamp int64 `json:"timestamp"`

	Body string `json:"body"`
}

// Mutation holds the snapshots of a record before and after a body update.
// Old and New always share ID and Timestamp.
type Mutation struct {
	Old Record `json:"old"`
	New Record `json:"new"`
}
