// Package bus is the Store's in-process event bus: ingest, extraction,
// and import milestones are broadcast to WebSocket observers (dashboards,
// the events command). Agents never consume these — agent retrieval polls.
package bus

import (
	"sync"

	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// Handler receives broadcast events. Handlers must not block; slow
// consumers buffer or drop on their own side.
type Handler func(*protocol.EventFrame)

// Publisher abstracts broadcast + subscription for components that emit
// events without caring who listens.
type Publisher interface {
	Broadcast(event *protocol.EventFrame)
	Subscribe(id string, h Handler)
	Unsubscribe(id string)
}

// Bus is the default in-memory Publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]Handler)}
}

// Subscribe registers a handler under an id, replacing any previous one.
func (b *Bus) Subscribe(id string, h Handler) {
	b.mu.Lock()
	b.handlers[id] = h
	b.mu.Unlock()
}

// Unsubscribe removes the handler.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

// Broadcast delivers the event to every subscriber.
func (b *Bus) Broadcast(event *protocol.EventFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(event)
	}
}
