// Package bus implements the reactive notification bus: a registry that lets
// any component subscribe a callback to change notifications on a named
// property of a named publisher.
//
// The bus is an explicitly constructed object, not a process-wide registry;
// hosts create one and pass it to whoever needs it, which keeps lifecycle
// and locking scope visible. Subscribers own a Handle and release it with
// Close when they go away; a closed handle is never invoked again and its
// registry entry is pruned on the next notification for the same property.
package bus

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Publisher is anything whose observable property changes can be announced.
// The bus attaches at most one hook per publisher, on first subscription,
// and the publisher must call it with the property name whenever one of its
// observable fields actually changes.
type Publisher interface {
	AttachPropertyHook(fn func(property string))
}

// Handler is a subscriber callback, invoked with the publisher and the name
// of the property that changed.
type Handler func(pub Publisher, property string)

type publisherEntry struct {
	// handles per property, in subscription order
	props map[string][]*Handle
}

// Bus routes property-change notifications from publishers to subscribers.
type Bus struct {
	mu   sync.RWMutex
	pubs map[Publisher]*publisherEntry
	log  *logrus.Logger
}

// New creates an empty bus. A nil logger falls back to the logrus standard
// logger.
func New(log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{
		pubs: make(map[Publisher]*publisherEntry),
		log:  log,
	}
}

// Subscribe registers handler for change notifications on the given
// properties of pub. The returned Handle must be closed when the subscriber
// goes away; subscribing alone does not tie the handle's lifetime to
// anything.
//
// The first subscription to a publisher attaches the bus's property hook on
// it; later subscriptions reuse it.
func (b *Bus) Subscribe(pub Publisher, handler Handler, properties ...string) (*Handle, error) {
	if pub == nil {
		return nil, fmt.Errorf("bus: subscribe: nil publisher")
	}
	if handler == nil {
		return nil, fmt.Errorf("bus: subscribe: nil handler")
	}
	if len(properties) == 0 {
		return nil, fmt.Errorf("bus: subscribe: no properties")
	}

	h := newHandle(pub, handler, properties)

	b.mu.Lock()
	entry, known := b.pubs[pub]
	if !known {
		entry = &publisherEntry{props: make(map[string][]*Handle)}
		b.pubs[pub] = entry
	}
	for _, prop := range properties {
		entry.props[prop] = append(entry.props[prop], h)
	}
	b.mu.Unlock()

	// Attach outside the registry lock: the hook may fire immediately from
	// the publisher's own context and must not deadlock against us.
	if !known {
		pub.AttachPropertyHook(func(property string) {
			b.notify(pub, property)
		})
	}

	return h, nil
}

// notify delivers one property change to every live subscriber, in
// subscription order. Handlers run outside the registry lock so they may
// subscribe or close handles freely. A panicking handler is logged and
// isolated; the remaining handlers still run.
func (b *Bus) notify(pub Publisher, property string) {
	b.mu.RLock()
	var snapshot []*Handle
	if entry, ok := b.pubs[pub]; ok {
		snapshot = lo.Filter(entry.props[property], func(h *Handle, _ int) bool {
			return !h.closed.Load()
		})
	}
	b.mu.RUnlock()

	dead := false
	for _, h := range snapshot {
		// Re-check: the handle may have been closed by an earlier handler
		// in this same notification.
		if h.closed.Load() {
			dead = true
			continue
		}
		b.invoke(h, pub, property)
	}

	if dead || b.hasClosed(pub, property) {
		b.prune(pub, property)
	}
}

// invoke runs one handler with panic isolation.
func (b *Bus) invoke(h *Handle, pub Publisher, property string) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"subscription": h.id,
				"property":     property,
			}).Errorf("bus: subscriber panicked: %v", r)
		}
	}()
	h.handler(pub, property)
}

// hasClosed reports whether any registered handle for (pub, property) has
// been closed since the last prune.
func (b *Bus) hasClosed(pub Publisher, property string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.pubs[pub]
	if !ok {
		return false
	}
	return lo.SomeBy(entry.props[property], func(h *Handle) bool {
		return h.closed.Load()
	})
}

// prune drops closed handles for one (publisher, property) pair. Short
// exclusive section; notifications for other publishers proceed as soon as
// it releases.
func (b *Bus) prune(pub Publisher, property string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.pubs[pub]
	if !ok {
		return
	}
	alive := lo.Filter(entry.props[property], func(h *Handle, _ int) bool {
		return !h.closed.Load()
	})
	if len(alive) == 0 {
		delete(entry.props, property)
	} else {
		entry.props[property] = alive
	}
}

// SubscriptionCount returns the number of live subscriptions registered for
// the (publisher, property) pair. Closed-but-unpruned handles do not count.
func (b *Bus) SubscriptionCount(pub Publisher, property string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.pubs[pub]
	if !ok {
		return 0
	}
	return lo.CountBy(entry.props[property], func(h *Handle) bool {
		return !h.closed.Load()
	})
}

// EntryCount returns the number of registry entries (live or not yet
// pruned) for the (publisher, property) pair.
func (b *Bus) EntryCount(pub Publisher, property string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.pubs[pub]
	if !ok {
		return 0
	}
	return len(entry.props[property])
}
