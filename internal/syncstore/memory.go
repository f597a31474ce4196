package syncstore

import (
	"context"
	"sync"
)

// MemoryBus is an in-process shared store. Handles opened on the same bus
// behave like separate viewers of one persisted store.
type MemoryBus struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[*memWatcher]struct{}
}

// memWatcher coalesces pending changes per key, so Put never waits on a
// slow watcher and the watcher always ends on the latest value.
type memWatcher struct {
	origin string
	notify chan struct{}

	mu      sync.Mutex
	pending map[string]Change
	order   []string
}

func (w *memWatcher) push(c Change) {
	w.mu.Lock()
	if _, ok := w.pending[c.Key]; !ok {
		w.order = append(w.order, c.Key)
	}
	w.pending[c.Key] = c
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *memWatcher) drain() []Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Change, 0, len(w.order))
	for _, k := range w.order {
		out = append(out, w.pending[k])
	}
	w.order = w.order[:0]
	clear(w.pending)
	return out
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		data:     make(map[string][]byte),
		watchers: make(map[*memWatcher]struct{}),
	}
}

// Open returns a handle on the bus. An empty origin gets a random one.
func (b *MemoryBus) Open(origin string) *MemoryStore {
	return &MemoryStore{bus: b, origin: newOrigin(origin)}
}

type MemoryStore struct {
	bus    *MemoryBus
	origin string
}

func (s *MemoryStore) Origin() string { return s.origin }

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()

	v, ok := s.bus.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	val := append([]byte(nil), value...)

	s.bus.mu.Lock()
	s.bus.data[key] = val
	targets := make([]*memWatcher, 0, len(s.bus.watchers))
	for w := range s.bus.watchers {
		if w.origin != s.origin {
			targets = append(targets, w)
		}
	}
	s.bus.mu.Unlock()

	for _, w := range targets {
		w.push(Change{Key: key, Value: append([]byte(nil), val...), Origin: s.origin})
	}
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, fn func(Change)) error {
	w := &memWatcher{
		origin:  s.origin,
		notify:  make(chan struct{}, 1),
		pending: make(map[string]Change),
	}
	s.bus.mu.Lock()
	s.bus.watchers[w] = struct{}{}
	s.bus.mu.Unlock()

	defer func() {
		s.bus.mu.Lock()
		delete(s.bus.watchers, w)
		s.bus.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.notify:
			for _, c := range w.drain() {
				fn(c)
			}
		}
	}
}
