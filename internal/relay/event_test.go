package relay

import (
	"bytes"
	"testing"
)

func TestParseEvent(t *testing.T) {
	payload := []byte(`{"type":"quiz.completed","data":{"userId":"alice","score":90}}`)

	e, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if e.Type != "quiz.completed" {
		t.Errorf("expected type quiz.completed, got %q", e.Type)
	}
	if e.TargetKey() != "alice" {
		t.Errorf("expected target alice, got %q", e.TargetKey())
	}
}

func TestParseEvent_Malformed(t *testing.T) {
	if _, err := ParseEvent([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestEvent_TargetKeyDefaultsToBroadcast(t *testing.T) {
	cases := []string{
		`{"type":"system.notice","data":{}}`,
		`{"type":"system.notice","data":{"userId":""}}`,
		`{"type":"system.notice"}`,
		`{"type":"system.notice","data":{"userId":42}}`,
	}
	for _, payload := range cases {
		e, err := ParseEvent([]byte(payload))
		if err != nil {
			t.Fatalf("parse %s failed: %v", payload, err)
		}
		if e.TargetKey() != BroadcastKey {
			t.Errorf("payload %s: expected broadcast target, got %q", payload, e.TargetKey())
		}
	}
}

func TestEvent_EncodePreservesWireBytes(t *testing.T) {
	payload := []byte(`{"type":"quiz.completed","data":{"userId":"alice"},"timestamp":"2026-01-01T00:00:00Z","source":"functions"}`)

	e, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	encoded, err := e.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Equal(encoded, payload) {
		t.Fatalf("expected verbatim forwarding, got %s", encoded)
	}
}

func TestEvent_EncodeLocalEvent(t *testing.T) {
	e := Event{Type: "ping", Data: map[string]any{"userId": "bob"}}

	encoded, err := e.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoding")
	}
}
