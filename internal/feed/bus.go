package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/venkatram-2005/Quick-Share/internal/metrics"
)

var (
	ErrSlowConsumer = errors.New("feed: subscriber too slow, events dropped")
	ErrClosed       = errors.New("feed: subscription closed")
)

// Bus fans events out to local subscribers keyed by room code. Publishing
// never blocks on a subscriber: a full queue evicts that subscriber.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	log    *slog.Logger
}

func NewBus(buffer int, log *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers interest in code. Only events delivered after the
// call returns are observed.
func (b *Bus) Subscribe(code string) *Subscription {
	s := &Subscription{
		bus:  b,
		code: code,
		ch:   make(chan ChangeEvent, b.buffer),
	}
	b.mu.Lock()
	set, ok := b.subs[code]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[code] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	metrics.FeedSubscribers.Inc()
	return s
}

// Deliver hands ev to every current subscriber of ev.RoomCode.
func (b *Bus) Deliver(ev ChangeEvent) {
	var slow []*Subscription
	b.mu.RLock()
	for s := range b.subs[ev.RoomCode] {
		if !s.offer(ev) {
			slow = append(slow, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range slow {
		b.log.Warn("evicting slow subscriber", "room", ev.RoomCode)
		metrics.FeedEvicted.Inc()
		s.closeWith(ErrSlowConsumer)
	}
}

// Subscribers returns the number of live subscriptions for code.
func (b *Bus) Subscribers(code string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[code])
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[s.code]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.code)
	}
	metrics.FeedSubscribers.Dec()
}

// Subscription is a pull-style handle on one room's events.
type Subscription struct {
	bus  *Bus
	code string
	ch   chan ChangeEvent

	mu      sync.Mutex
	closed  bool
	err     error
	lastRev int64
}

func (s *Subscription) Code() string { return s.code }

// offer enqueues without blocking. Returns false when the queue is full.
// Room events at or below the last delivered revision are superseded and
// never delivered: a subscriber that already saw revision n+1 does not get
// revision n, even though n was committed.
func (s *Subscription) offer(ev ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if ev.Entity == EntityRoom && ev.Revision > 0 {
		if ev.Revision <= s.lastRev {
			return true
		}
		s.lastRev = ev.Revision
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Next blocks until an event arrives, the subscription ends or ctx is done.
// Events queued before an eviction are still returned before the error.
func (s *Subscription) Next(ctx context.Context) (ChangeEvent, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return ChangeEvent{}, s.Err()
		}
		return ev, nil
	case <-ctx.Done():
		return ChangeEvent{}, ctx.Err()
	}
}

// Err reports why the subscription ended, or nil while it is live.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the registration. Safe to call more than once.
func (s *Subscription) Close() { s.closeWith(ErrClosed) }

func (s *Subscription) closeWith(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	s.mu.Unlock()
	s.bus.remove(s)
}
