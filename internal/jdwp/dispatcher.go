package jdwp

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

// Listener receives event sets on the connection's reader goroutine. It
// must not block on commands of the same connection: replies are read by
// that goroutine. Hand long-running work to an EventQueue.
type Listener func(*EventSet) error

type listenerEntry struct {
	id int
	fn Listener
}

type listeners struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry
}

// Subscribe registers l. Listeners run in registration order. The returned
// function unregisters l and is safe to call more than once.
func (c *Conn) Subscribe(l Listener) (unsubscribe func()) {
	ls := &c.listeners
	ls.mu.Lock()
	ls.nextID++
	id := ls.nextID
	ls.entries = append(ls.entries, listenerEntry{id: id, fn: l})
	ls.mu.Unlock()

	return func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		for i, e := range ls.entries {
			if e.id == id {
				ls.entries = append(ls.entries[:i:i], ls.entries[i+1:]...)
				return
			}
		}
	}
}

func (ls *listeners) snapshot() []Listener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]Listener, len(ls.entries))
	for i, e := range ls.entries {
		out[i] = e.fn
	}
	return out
}

// dispatch prepares an event set and hands it to every listener.
func (c *Conn) dispatch(set *EventSet) {
	c.prepare(set)
	for _, l := range c.listeners.snapshot() {
		c.deliver(l, set)
	}
}

// prepare attaches originating requests, evicts unloaded classes and marks
// threads suspended according to the set's policy.
func (c *Conn) prepare(set *EventSet) {
	for _, ev := range set.Events {
		if id := ev.RequestID(); id != 0 {
			if r := c.requests.Lookup(id); r != nil {
				ev.base().request = r
			} else {
				c.log.WithFields(logrus.Fields{"request": id, "kind": ev.Kind()}).Debug("event for unknown request")
			}
		}
		if e, ok := ev.(*ClassUnloadEvent); ok {
			if n := c.cache.evictSignature(e.Signature); n > 0 {
				c.log.WithField("signature", e.Signature).Debugf("evicted %d type mirrors", n)
			}
		}
	}

	switch set.SuspendPolicy {
	case SuspendAll:
		c.vmSuspended.Store(true)
		for _, t := range c.cache.threads() {
			t.suspended.Store(true)
		}
	case SuspendEventThread:
		for _, ev := range set.Events {
			if t := EventThread(ev); t != nil {
				t.suspended.Store(true)
			}
		}
	}
}

// deliver calls one listener. Errors and panics are logged and never stop
// delivery to the remaining listeners.
func (c *Conn) deliver(l Listener, set *EventSet) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("event listener panicked")
		}
	}()
	if err := l(set); err != nil {
		c.log.WithError(err).Warn("event listener failed")
	}
}

// EventQueue buffers event sets so a consumer can process them on its own
// goroutine. When the buffer is full the oldest set is dropped.
type EventQueue struct {
	limit       int
	signal      chan struct{}
	unsubscribe func()

	mu           sync.Mutex
	items        []*EventSet
	disconnected bool
	closed       bool
}

// NewEventQueue subscribes a queue holding at most limit sets, or an
// unbounded number when limit is 0.
func NewEventQueue(c *Conn, limit int) *EventQueue {
	q := &EventQueue{
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
	q.unsubscribe = c.Subscribe(q.push)
	if c.State() == StateDisconnected {
		q.mu.Lock()
		q.disconnected = true
		q.mu.Unlock()
	}
	return q
}

func (q *EventQueue) push(set *EventSet) error {
	q.mu.Lock()
	var dropped *EventSet
	if q.limit > 0 && len(q.items) >= q.limit {
		dropped = q.items[0]
		q.items = q.items[1:]
	}
	q.items = append(q.items, set)
	for _, ev := range set.Events {
		if ev.Kind() == VMDisconnected {
			q.disconnected = true
		}
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	if dropped != nil {
		return fmt.Errorf("event queue full, dropped %v", dropped)
	}
	return nil
}

// Next returns the oldest queued set, waiting for one if necessary. Once
// the connection is gone and the queue drained it returns a Disconnected
// error.
func (q *EventQueue) Next(ctx context.Context) (*EventSet, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			set := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return set, nil
		}
		done := q.disconnected || q.closed
		q.mu.Unlock()
		if done {
			return nil, errors.Disconnected(nil)
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued sets.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close unsubscribes the queue and wakes waiting consumers.
func (q *EventQueue) Close() {
	q.unsubscribe()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
