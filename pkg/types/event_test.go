package types

import (
	"encoding/json"
	"testing"
)

func TestEvent_InsertIsFlattened(t *testing.T) {
	data, err := json.Marshal(InsertEvent(Record{ID: 7, Timestamp: 100, Body: "hello"}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"insert","id":7,"timestamp":100,"body":"hello"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestEvent_DeleteIsFlattened(t *testing.T) {
	data, err := json.Marshal(DeleteEvent(Record{ID: 3, Timestamp: 42}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"delete","id":3,"timestamp":42,"body":""}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestEvent_MutateCarriesOldTimestamp(t *testing.T) {
	ev := MutateEvent(Mutation{
		Old: Record{ID: 1, Timestamp: 500, Body: "a"},
		New: Record{ID: 1, Timestamp: 500, Body: "b"},
	})
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"mutate","timestamp":500,"old":{"id":1,"timestamp":500,"body":"a"},"new":{"id":1,"timestamp":500,"body":"b"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
	if ev.Timestamp() != 500 {
		t.Errorf("Timestamp(): got %d, want 500", ev.Timestamp())
	}
}

func TestEvent_UnknownTypeFails(t *testing.T) {
	if _, err := json.Marshal(Event{Type: "upsert"}); err == nil {
		t.Error("Marshal: expected error for unknown type")
	}
	var ev Event
	if err := json.Unmarshal([]byte(`{"type":"upsert"}`), &ev); err == nil {
		t.Error("Unmarshal: expected error for unknown type")
	}
}

func TestEvent_UnmarshalMutateRequiresBothSides(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"type":"mutate","timestamp":1,"old":{"id":1,"timestamp":1,"body":""}}`), &ev)
	if err == nil {
		t.Fatal("expected error when new is missing")
	}
}

func TestEvent_UnmarshalMutate(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"type":"mutate","timestamp":9,"old":{"id":2,"timestamp":9,"body":"x"},"new":{"id":2,"timestamp":9,"body":"y"}}`), &ev)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Mutation.Old.Body != "x" || ev.Mutation.New.Body != "y" {
		t.Errorf("bodies: got %q/%q, want x/y", ev.Mutation.Old.Body, ev.Mutation.New.Body)
	}
}
