package session

import (
	"sync"

	"github.com/siddug/wave-sub000/internal/logging"
)

// Bus fans events out to subscribers. Every subscriber has its own unbounded
// mailbox and delivery goroutine, so Publish never blocks and never drops,
// and each subscriber sees events in publish order.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	nextID int
	subs   map[int]*mailbox
	closed bool
	log    logging.Logger
}

type mailbox struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	fn        func(Event)
	delivered uint64
	closing   bool
	exited    bool
}

// NewBus creates a bus. log may be nil.
func NewBus(log logging.Logger) *Bus {
	return &Bus{subs: make(map[int]*mailbox), log: log}
}

// Publish stamps ev with the next sequence number and queues it for every
// subscriber.
func (b *Bus) Publish(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev.Seq = b.seq
	if b.closed {
		return ev
	}
	for _, mb := range b.subs {
		mb.mu.Lock()
		mb.queue = append(mb.queue, ev)
		mb.cond.Broadcast()
		mb.mu.Unlock()
	}
	return ev
}

// Subscribe registers fn and returns a function that removes it. Events
// already queued for fn are still delivered.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb := &mailbox{fn: fn, delivered: b.seq}
	mb.cond = sync.NewCond(&mb.mu)
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = mb
	go b.deliver(mb)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			mb.close()
		})
	}
}

func (b *Bus) deliver(mb *mailbox) {
	for {
		mb.mu.Lock()
		for len(mb.queue) == 0 && !mb.closing {
			mb.cond.Wait()
		}
		if len(mb.queue) == 0 {
			mb.exited = true
			mb.cond.Broadcast()
			mb.mu.Unlock()
			return
		}
		ev := mb.queue[0]
		mb.queue = mb.queue[1:]
		mb.mu.Unlock()

		b.call(mb.fn, ev)

		mb.mu.Lock()
		mb.delivered = ev.Seq
		mb.cond.Broadcast()
		mb.mu.Unlock()
	}
}

func (b *Bus) call(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Errorf("subscriber panicked on event %d: %v", ev.Seq, r)
		}
	}()
	fn(ev)
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closing = true
	mb.cond.Broadcast()
	mb.mu.Unlock()
}

// Sync blocks until every subscriber has handled every event published so far.
func (b *Bus) Sync() {
	b.mu.Lock()
	target := b.seq
	subs := make([]*mailbox, 0, len(b.subs))
	for _, mb := range b.subs {
		subs = append(subs, mb)
	}
	b.mu.Unlock()

	for _, mb := range subs {
		mb.mu.Lock()
		for mb.delivered < target && !mb.exited {
			mb.cond.Wait()
		}
		mb.mu.Unlock()
	}
}

// Close stops accepting subscribers and lets every mailbox drain and exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*mailbox)
	b.mu.Unlock()
	for _, mb := range subs {
		mb.close()
	}
}
