package draft

import "sync"

// Change describes a write to a draft key
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Deleted bool   `json:"deleted,omitempty"`
	// Origin identifies the Manager that made the change
	Origin string `json:"origin"`
}

// Bus carries draft changes between Managers
type Bus interface {
	Publish(c Change) error
	// Subscribe registers fn for every published change. The returned
	// function removes the subscription.
	Subscribe(fn func(Change)) (unsubscribe func())
}

// subscribers is a fan-out list shared by the bus implementations
type subscribers struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(Change)
}

func (s *subscribers) add(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Change))
	}
	s.nextID++
	id := s.nextID
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.fns))
	for id := 1; id <= s.nextID; id++ {
		if fn, ok := s.fns[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// LocalBus delivers changes synchronously to subscribers in this process
type LocalBus struct {
	subs subscribers
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(c Change) error {
	b.subs.notify(c)
	return nil
}

func (b *LocalBus) Subscribe(fn func(Change)) func() {
	return b.subs.add(fn)
}
