package watchdog

import "sync"

// Feed is an in-process Source that fans published events out to its
// subscribers.
type Feed struct {
	mu       sync.Mutex
	handlers map[int]func(EventKind)
	nextID   int
}

func NewFeed() *Feed {
	return &Feed{handlers: make(map[int]func(EventKind))}
}

func (f *Feed) Subscribe(handler func(EventKind)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

// Publish delivers kind to every current subscriber.
func (f *Feed) Publish(kind EventKind) {
	f.mu.Lock()
	handlers := make([]func(EventKind), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(kind)
	}
}

// Subscribers reports how many handlers are attached.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
