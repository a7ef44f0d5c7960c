package events

import "sync"

// Sink receives the ordered event stream of one engine. Emit is called from
// the engine loop only, so implementations see events in production order.
type Sink interface {
	Emit(event Event)
}

// ChanSink forwards events to a channel. Emit blocks while the channel is full.
type ChanSink chan Event

// Emit sends the event on the channel
func (c ChanSink) Emit(event Event) { c <- event }

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event
func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of what was recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset forgets recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
