package eventqueue

import (
	"sync"

	"github.com/arpa-network/randcast-node/log"
)

// Handler receives one event payload. Handlers must not block: spec.md
// §4.2 requires publication to be non-blocking and a slow subscriber must
// not stall publishers, so handlers enqueue dynamic tasks rather than
// perform long work inline.
type Handler func(payload interface{})

type subscriber struct {
	id      string
	handler Handler
}

// Queue is the process-wide event bus: one Queue instance is shared by
// every listener/subscriber in the process.
type Queue struct {
	mu   sync.RWMutex
	subs map[string][]subscriber // keyed by Topic.String(), ordered by registration
	// byName holds subscribers registered via SubscribeByName: request-
	// scoped topics (PartialSignatureFinished, ReadyToAggregate) mint a
	// fresh Topic.Key per request_id, but spec.md §4.2 requires every
	// subscriber to register before any listener starts — before any
	// request_id exists. Matching by Topic.Name alone lets a fixed
	// subscriber receive every instance of a per-request topic.
	byName map[string][]subscriber
	log    log.Logger
}

func New(l log.Logger) *Queue {
	return &Queue{subs: make(map[string][]subscriber), byName: make(map[string][]subscriber), log: l}
}

// Subscribe registers handler under (topic, subscriberID). A second call
// with the same (topic, subscriberID) replaces the prior handler in place
// — registration order for other subscribers is preserved (spec.md §4.2).
func (q *Queue) Subscribe(topic Topic, subscriberID string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := topic.String()
	list := q.subs[key]
	for i, s := range list {
		if s.id == subscriberID {
			list[i].handler = handler
			return
		}
	}
	q.subs[key] = append(list, subscriber{id: subscriberID, handler: handler})
}

// SubscribeByName registers handler against every topic sharing name,
// regardless of Topic.Key — the scoping key a per-request topic
// (PartialSignatureFinished, ReadyToAggregate) mints is only known once a
// request arrives, after subscriber registration has already happened.
func (q *Queue) SubscribeByName(name string, subscriberID string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.byName[name]
	for i, s := range list {
		if s.id == subscriberID {
			list[i].handler = handler
			return
		}
	}
	q.byName[name] = append(list, subscriber{id: subscriberID, handler: handler})
}

// Unsubscribe removes a single (topic, subscriberID) registration.
func (q *Queue) Unsubscribe(topic Topic, subscriberID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := topic.String()
	list := q.subs[key]
	for i, s := range list {
		if s.id == subscriberID {
			q.subs[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish fans payload out to every live subscriber of topic, in
// registration order — both exact-topic subscribers and any registered
// by name alone. Each handler call is synchronous but non-blocking by
// contract (handlers must return quickly); a handler that panics is
// recovered and logged so one bad subscriber cannot take down the
// publisher's goroutine (the listener's poll loop).
func (q *Queue) Publish(topic Topic, payload interface{}) {
	q.mu.RLock()
	list := append([]subscriber(nil), q.subs[topic.String()]...)
	list = append(list, q.byName[topic.Name]...)
	q.mu.RUnlock()

	for _, s := range list {
		q.dispatch(topic, s, payload)
	}
}

func (q *Queue) dispatch(topic Topic, s subscriber, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("subscriber panicked", "topic", topic.String(), "subscriber_id", s.id, "panic", r)
		}
	}()
	s.handler(payload)
}
