package broker

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewProducer_RequiresBootstrapServer(t *testing.T) {
	if _, err := NewProducer(Config{}); err == nil {
		t.Error("expected error for missing bootstrap server")
	}
}

func TestProducer_PublishAfterClose(t *testing.T) {
	p, err := NewProducer(Config{BootstrapServer: "localhost:9092"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if err := p.Publish(context.Background(), "quiz.completed", nil); err == nil {
		t.Error("expected error publishing after close")
	}
}

func TestBuildMessage_Envelope(t *testing.T) {
	msg, err := buildMessage("quiz.completed", map[string]any{"userId": "alice", "score": 90})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if string(msg.Key) != "alice" {
		t.Errorf("expected message keyed by userId, got %q", msg.Key)
	}

	var envelope map[string]any
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if envelope["type"] != "quiz.completed" {
		t.Errorf("expected type in envelope, got %v", envelope["type"])
	}
	if envelope["source"] != eventSource {
		t.Errorf("expected source %q, got %v", eventSource, envelope["source"])
	}
	if _, ok := envelope["timestamp"].(string); !ok {
		t.Error("expected timestamp in envelope")
	}
	data, ok := envelope["data"].(map[string]any)
	if !ok || data["userId"] != "alice" {
		t.Errorf("expected data passthrough, got %v", envelope["data"])
	}

	if len(msg.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(msg.Headers))
	}
	if msg.Headers[0].Key != "event-type" || string(msg.Headers[0].Value) != "quiz.completed" {
		t.Errorf("unexpected event-type header: %s=%s", msg.Headers[0].Key, msg.Headers[0].Value)
	}
	if msg.Headers[1].Key != "user-id" || string(msg.Headers[1].Value) != "alice" {
		t.Errorf("unexpected user-id header: %s=%s", msg.Headers[1].Key, msg.Headers[1].Value)
	}
}

func TestBuildMessage_AnonymousKey(t *testing.T) {
	msg, err := buildMessage("system.notice", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if string(msg.Key) != "anonymous" {
		t.Errorf("expected anonymous key, got %q", msg.Key)
	}
	if string(msg.Headers[1].Value) != "unknown" {
		t.Errorf("expected unknown user-id header, got %q", msg.Headers[1].Value)
	}
}
