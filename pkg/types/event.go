package types

import (
	"encoding/json"
	"fmt"
)

// EventType names the store mutation an Event describes.
type EventType string

const (
	EventInsert EventType = "insert"
	EventDelete EventType = "delete"
	EventMutate EventType = "mutate"
)

// Event is one store mutation as pushed to subscribers.
//
// Insert and delete events carry the affected record flattened next to the
// type:
//
//	{"type":"insert","id":1,"timestamp":1700000000,"body":"..."}
//
// Mutate events carry both snapshots, with timestamp taken from the old one:
//
//	{"type":"mutate","timestamp":1700000000,"old":{...},"new":{...}}
type Event struct {
	Type EventType

	// Record is set for insert and delete events.
	Record Record

	// Mutation is set for mutate events.
	Mutation Mutation
}

// InsertEvent returns the event for a newly created record.
func InsertEvent(r Record) Event { return Event{Type: EventInsert, Record: r} }

// DeleteEvent returns the event for a removed record.
func DeleteEvent(r Record) Event { return Event{Type: EventDelete, Record: r} }

// MutateEvent returns the event for a body update.
func MutateEvent(m Mutation) Event { return Event{Type: EventMutate, Mutation: m} }

// Timestamp returns the timestamp reported on the wire for e.
func (e Event) Timestamp() int64 {
	if e.Type == EventMutate {
		return e.Mutation.Old.Timestamp
	}
	return e.Record.Timestamp
}

type recordEvent struct {
	Type      EventType `json:"type"`
	ID        int64     `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Body      string    `json:"body"`
}

type mutateEvent struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Old       Record    `json:"old"`
	New       Record    `json:"new"`
}

// MarshalJSON encodes e in its wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventInsert, EventDelete:
		return json.Marshal(recordEvent{
			Type:      e.Type,
			ID:        e.Record.ID,
			Timestamp: e.Record.Timestamp,
			Body:      e.Record.Body,
		})
	case EventMutate:
		return json.Marshal(mutateEvent{
			Type:      e.Type,
			Timestamp: e.Mutation.Old.Timestamp,
			Old:       e.Mutation.Old,
			New:       e.Mutation.New,
		})
	default:
		return nil, fmt.Errorf("types: unknown event type %q", e.Type)
	}
}

// UnmarshalJSON decodes an event from its wire shape.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      EventType `json:"type"`
		ID        int64     `json:"id"`
		Timestamp int64     `json:"timestamp"`
		Body      string    `json:"body"`
		Old       *Record   `json:"old"`
		New       *Record   `json:"new"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case EventInsert, EventDelete:
		*e = Event{Type: raw.Type, Record: Record{ID: raw.ID, Timestamp: raw.Timestamp, Body: raw.Body}}
	case EventMutate:
		if raw.Old == nil || raw.New == nil {
			return fmt.Errorf("types: mutate event missing old or new record")
		}
		*e = Event{Type: raw.Type, Mutation: Mutation{Old: *raw.Old, New: *raw.New}}
	default:
		return fmt.Errorf("types: unknown event type %q", raw.Type)
	}
	return nil
}
