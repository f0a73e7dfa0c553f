// Package realtime fans domain events out to connected agents and message brokers.
package realtime

import (
	"sync"
	"time"
)

const (
	EventMessageNew           = "message:new"
	EventConversationUpdated  = "conversation:updated"
	EventConversationAssigned = "conversation:assigned"
	EventUserAvailability     = "user:availability"
)

// Envelope is the payload delivered on every transport.
type Envelope struct {
	Event     string      `json:"event"`
	TenantID  string      `json:"tenantId"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Broadcaster publishes a tenant-scoped event. Implementations must not block for long
// and must never fail the caller.
type Broadcaster interface {
	Broadcast(tenantID, event string, payload interface{})
}

// Fanout delivers each event to every transport in order.
type Fanout []Broadcaster

func (f Fanout) Broadcast(tenantID, event string, payload interface{}) {
	for _, b := range f {
		if b != nil {
			b.Broadcast(tenantID, event, payload)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Broadcast(string, string, interface{}) {}

// Recorder keeps every event in memory. Tests use it to assert on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Broadcast(tenantID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Envelope{Event: event, TenantID: tenantID, Data: payload, Timestamp: time.Now()})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Event)
	}
	return names
}
