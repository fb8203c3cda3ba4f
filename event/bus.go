// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/riclolsen/cs101master/clog"
)

const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 50 * time.Millisecond
)

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithQueueSize sets the per-subscriber queue length.
func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithPublishTimeout bounds how long Publish waits on full subscriber queues.
func WithPublishTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.publishTimeout = d
		}
	}
}

type subscriber struct {
	ch   chan Event
	fn   func(Event)
	done chan struct{}
}

// Bus fans every published event out to its subscribers. Publication is
// serialized, so all subscribers observe the same order. Each subscriber is
// fed from its own queue by its own goroutine.
type Bus struct {
	clog.Clog

	mu     sync.Mutex // serializes Publish, Subscribe cancel and Close
	closed bool

	subs    *xsync.MapOf[uint64, *subscriber]
	nextID  atomic.Uint64
	dropped atomic.Uint64

	queueSize      int
	publishTimeout time.Duration
	now            func() time.Time
}

var _ Sink = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		Clog:           clog.NewLogger("event bus"),
		subs:           xsync.NewMapOf[uint64, *subscriber](),
		queueSize:      DefaultQueueSize,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.LogMode(true)
	return b
}

// Subscribe registers fn. fn runs on a goroutine owned by the subscription
// and sees events in publication order. cancel stops delivery; it may be
// called from fn and more than once.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	s := &subscriber{
		ch:   make(chan Event, b.queueSize),
		fn:   fn,
		done: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.done)
		return func() {}
	}
	id := b.nextID.Add(1)
	b.subs.Store(id, s)
	b.mu.Unlock()

	go b.deliver(s)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs.LoadAndDelete(id); ok {
			close(s.ch)
		}
	}
}

func (b *Bus) deliver(s *subscriber) {
	defer close(s.done)
	for ev := range s.ch {
		b.call(s.fn, ev)
	}
}

func (b *Bus) call(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.Error("Subscriber panic on %s event: %v", ev.Kind, r)
		}
	}()
	fn(ev)
}

// Publish stamps ev with the current time and queues it for every
// subscriber. A subscriber whose queue stays full for PublishTimeout misses
// the event; see Dropped.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ev.Time = b.now()

	var timer *time.Timer
	expired := false
	b.subs.Range(func(_ uint64, s *subscriber) bool {
		select {
		case s.ch <- ev:
			return true
		default:
		}
		if expired {
			b.dropped.Add(1)
			return true
		}
		if timer == nil {
			timer = time.NewTimer(b.publishTimeout)
		}
		select {
		case s.ch <- ev:
		case <-timer.C:
			expired = true
			b.dropped.Add(1)
			b.Warn("Subscriber queue full, dropping %s event", ev.Kind)
		}
		return true
	})
	if timer != nil {
		timer.Stop()
	}
}

// Dropped returns the number of events lost to full subscriber queues.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	return b.subs.Size()
}

// Close stops accepting events and waits until every subscriber has
// handled what was queued for it. Close must not be called from a subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var pending []*subscriber
	b.subs.Range(func(id uint64, s *subscriber) bool {
		b.subs.Delete(id)
		close(s.ch)
		pending = append(pending, s)
		return true
	})
	b.mu.Unlock()

	for _, s := range pending {
		<-s.done
	}
}
