package relay

import "log"

// Dispatcher fans one event out to every stream registered for the event's
// target key and to every broadcast listener. It runs on the broker read
// loop's goroutine; per-stream ordering follows from that plus each
// handle's single-writer queue.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a Dispatcher reading from the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch serializes the event once and delivers it to the target key's
// handles and the broadcast handles. A handle whose delivery fails (closed
// or backlogged) is deregistered and closed; remaining handles still
// receive the event and no failure propagates to the caller.
func (d *Dispatcher) Dispatch(event Event) {
	frame, err := event.Encode()
	if err != nil {
		log.Printf("relay: failed to encode event %q: %v", event.Type, err)
		return
	}

	target := event.TargetKey()
	keys := []string{target}
	if target != BroadcastKey {
		keys = append(keys, BroadcastKey)
	}

	for _, key := range keys {
		for _, h := range d.registry.Lookup(key) {
			if err := h.Deliver(frame); err != nil {
				log.Printf("relay: dropping stream %s (key=%s): %v", h.ID, h.Key, err)
				d.registry.Deregister(h)
				h.Close()
			}
		}
	}
}
