package events

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope every transport serializes to JSON.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Local fans events out over an in-process channel, for a UI that runs
// embedded in the same process (or for tests). Emit never blocks the
// caller past the channel's buffer: a full channel drops the oldest
// unread message rather than stalling the aggregator loop.
type Local struct {
	ch chan Message
}

// NewLocal returns a Local with the given buffer size.
func NewLocal(buffer int) *Local {
	return &Local{ch: make(chan Message, buffer)}
}

// Emit implements Emitter.
func (l *Local) Emit(event string, payload any) error {
	// Round-trip through JSON so Local behaves exactly like the wire
	// transports: subscribers never observe live pointers into state
	// the aggregator is still mutating.
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload for event %q: %w", event, err)
	}
	var cloned any
	if err := json.Unmarshal(data, &cloned); err != nil {
		return fmt.Errorf("round-tripping payload for event %q: %w", event, err)
	}

	msg := Message{Event: event, Payload: cloned}
	select {
	case l.ch <- msg:
	default:
		select {
		case <-l.ch:
		default:
		}
		l.ch <- msg
	}
	return nil
}

// Subscribe returns the channel new messages arrive on.
func (l *Local) Subscribe() <-chan Message {
	return l.ch
}
