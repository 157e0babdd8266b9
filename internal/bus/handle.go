package bus

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the subscriber's ownership token for a subscription. The bus
// holds non-owning references to it; closing the handle is what ends the
// subscription, so a subscriber that goes away without closing keeps its
// entry registered (and invoked) until someone closes it.
type Handle struct {
	id         uuid.UUID
	pub        Publisher
	handler    Handler
	properties []string
	closed     atomic.Bool
}

func newHandle(pub Publisher, handler Handler, properties []string) *Handle {
	return &Handle{
		id:         uuid.New(),
		pub:        pub,
		handler:    handler,
		properties: properties,
	}
}

// ID returns the subscription identifier, for logging.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Properties returns the property names this handle subscribes to.
func (h *Handle) Properties() []string {
	return h.properties
}

// Close ends the subscription. The handler is never invoked after Close
// returns from the closing goroutine's point of view; a notification
// already in flight on another goroutine may still deliver one last call.
// Closing twice is harmless. The registry entry is pruned lazily on the
// next notification.
func (h *Handle) Close() {
	h.closed.Store(true)
}

// IsClosed reports whether the handle has been closed.
func (h *Handle) IsClosed() bool {
	return h.closed.Load()
}
