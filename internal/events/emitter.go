// Package events is the local UI push seam: the core calls Emit on every
// raid-start/phase-transition/snapshot tick and clear-encounter, and this
// package is responsible for getting that payload in front of whatever
// is listening — a local websocket client, a redis subscriber, or both.
package events

// Emitter is the one method the aggregator core depends on. payload is
// marshaled to JSON by the concrete transport; the core never serializes
// it itself.
type Emitter interface {
	Emit(event string, payload any) error
}

// Multi fans a single Emit out to every emitter in order, returning the
// first error encountered (after still calling the rest).
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event string, payload any) error {
	var firstErr error
	for _, e := range m {
		if err := e.Emit(event, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
