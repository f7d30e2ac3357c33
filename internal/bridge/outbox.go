package bridge

import "sync"

type queued struct {
	seq uint64
	msg outbound
	// droppable marks intermediate progress events. Replies and terminal
	// progress events are never evicted.
	droppable bool
}

// outbox is the FIFO between producers and the connection writer. Once it
// holds limit messages, a new message evicts the oldest droppable one; when
// nothing is droppable it grows instead.
type outbox struct {
	mu    sync.Mutex
	items []queued
	next  uint64
	limit int
	ready chan struct{}
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit, ready: make(chan struct{}, 1)}
}

// push enqueues msg and reports whether an older message was evicted.
func (o *outbox) push(msg outbound, droppable bool) bool {
	o.mu.Lock()
	evicted := false
	if len(o.items) >= o.limit {
		for i, item := range o.items {
			if item.droppable {
				o.items = append(o.items[:i], o.items[i+1:]...)
				evicted = true
				break
			}
		}
	}
	o.next++
	o.items = append(o.items, queued{seq: o.next, msg: msg, droppable: droppable})
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return evicted
}

// front returns the oldest message without removing it, so a failed write
// leaves it queued for the next connection.
func (o *outbox) front() (outbound, uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return outbound{}, 0, false
	}
	return o.items[0].msg, o.items[0].seq, true
}

// pop removes the message front returned, unless a push evicted it meanwhile.
func (o *outbox) pop(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) > 0 && o.items[0].seq == seq {
		o.items[0] = queued{}
		o.items = o.items[1:]
	}
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
