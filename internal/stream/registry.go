package stream

import (
	"sync"

	"github.com/insites-io/module-ai/internal/metrics"
)

// channelBuffer leaves room for the producer's terminal event pair plus
// slack, so producers never block on an abandoned consumer.
const channelBuffer = 16

// Registry maps live session ids to their event channels. A session exists
// exactly while its channel does; ids may be reused after removal, yielding a
// fresh channel.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]chan Event
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]chan Event{}}
}

// GetOrCreate returns the session's channel, creating it atomically when the
// id is not yet registered.
func (r *Registry) GetOrCreate(id string) chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.sessions[id]; ok {
		return ch
	}
	ch := make(chan Event, channelBuffer)
	r.sessions[id] = ch
	metrics.SessionOpened()
	return ch
}

// Remove deletes the session. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		metrics.SessionClosed()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
