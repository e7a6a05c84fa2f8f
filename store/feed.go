package store

import (
	"log"
	"sync"

	"chatrelay/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind is dropped rather than blocking other deliveries.
const subscriberBuffer = 256

// insertFeed fans out committed message inserts to subscribers. Publish calls
// are serialized by the caller, so every subscriber observes inserts in
// commit order.
type insertFeed struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Message
	nextID int
}

func newInsertFeed() *insertFeed {
	return &insertFeed{subs: make(map[int]chan domain.Message)}
}

// subscribe registers a new subscriber and returns its channel plus a cancel
// function. Cancel is idempotent.
func (f *insertFeed) subscribe() (<-chan domain.Message, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan domain.Message, subscriberBuffer)
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// publish delivers a committed insert to every subscriber.
func (f *insertFeed) publish(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subs {
		select {
		case ch <- msg:
		default:
			// Buffer full, drop the subscriber.
			log.Printf("WARN: feed subscriber %d too slow, dropping", id)
			delete(f.subs, id)
			close(ch)
		}
	}
}

// closeAll drops every subscriber.
func (f *insertFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
