package session

import "sync"

// broadcaster fans events out to subscriptions. publish never blocks: each
// subscription buffers without bound and delivers from its own goroutine.
type broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]*Subscription)}
}

func (b *broadcaster) subscribe() *Subscription {
	s := &Subscription{
		b:    b,
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		close(s.done)
		s.closed = true
		return s
	}
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	b.mu.Unlock()

	go s.pump()
	return s
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.enqueue(ev)
	}
}

func (b *broadcaster) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *broadcaster) close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Subscription receives every Event published after it was created, in
// publication order.
type Subscription struct {
	b  *broadcaster
	id uint64

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool

	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close detaches the subscription. Undelivered events are dropped.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		already := s.closed
		s.closed = true
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()
		if already {
			return
		}
		close(s.done)
		s.b.remove(s.id)
	})
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
