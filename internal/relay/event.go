package relay

import (
	"encoding/json"
	"fmt"
)

// BroadcastKey is the reserved recipient key meaning "all listeners,
// regardless of target user". Clients that connect without a userId are
// registered under it, and every dispatched event is delivered to it in
// addition to the event's specific target.
const BroadcastKey = "*"

// Event is one message consumed from the broker and fanned out to streams.
// The relay never persists events; each one is decoded once, delivered to
// the streams registered at that moment, and discarded.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`

	// raw holds the original wire bytes when the event was decoded from a
	// broker message, so forwarding preserves fields the struct does not
	// model (timestamp, source, producer extras).
	raw []byte
}

// ParseEvent decodes a broker message payload into an Event, retaining the
// original bytes for forwarding.
func ParseEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	e.raw = append([]byte(nil), payload...)
	return e, nil
}

// TargetKey resolves the recipient key for this event: the payload's
// data.userId when present and non-empty, otherwise the broadcast key.
func (e Event) TargetKey() string {
	if uid, ok := e.Data["userId"].(string); ok && uid != "" {
		return uid
	}
	return BroadcastKey
}

// Encode returns the wire bytes for this event. Events decoded from the
// broker are forwarded verbatim; locally constructed events are marshalled.
func (e Event) Encode() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return json.Marshal(e)
}
